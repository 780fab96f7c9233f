package debug

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
)

const defaultAddr = "localhost:6060"

// DebugService serves pprof and published variables on a separate port. It
// is only added to the process when debugging is requested.
type DebugService struct {
	Config config.Config `inject:""`
	Logger logger.Logger `inject:""`

	mux     *http.ServeMux
	server  *http.Server
	urls    []string
	expVars map[string]any
	mutex   sync.RWMutex
	done    chan struct{}
}

func (s *DebugService) Start() error {
	s.expVars = make(map[string]any)
	s.mux = http.NewServeMux()
	s.done = make(chan struct{})

	// Add to the mux but don't add an index entry.
	s.mux.HandleFunc("/", s.indexHandler)

	s.HandleFunc("/debug/pprof/", pprof.Index)
	s.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	s.HandleFunc("/debug/pprof/profile", pprof.Profile)
	s.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	s.HandleFunc("/debug/pprof/trace", pprof.Trace)
	s.HandleFunc("/debug/vars", s.expvarHandler)
	s.Publish("cmdline", os.Args)
	s.Publish("memstats", Func(memstats))
	s.Publish("config_hash", s.Config.GetHash())

	addr := s.Config.GetGeneralConfig().DebugServiceAddr
	go s.serve(addr)
	return nil
}

// serve listens on the configured address. Without one it prefers the
// default address and tries the next 9 ports when that one is taken.
func (s *DebugService) serve(configAddr string) {
	defer close(s.done)
	if configAddr != "" {
		s.listen(configAddr)
		return
	}
	host, portStr, _ := net.SplitHostPort(defaultAddr)
	port, _ := strconv.Atoi(portStr)
	for i := 0; i < 10; i++ {
		err := s.listen(net.JoinHostPort(host, strconv.Itoa(port+i)))
		if errors.Is(err, syscall.EADDRINUSE) {
			continue
		}
		return
	}
}

func (s *DebugService) listen(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mutex.Lock()
	s.server = server
	s.mutex.Unlock()

	s.Logger.Info().Logf("debug service listening on %s", addr)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.Logger.Error().WithField("error", err.Error()).Logf("debug http server error")
	}
	return err
}

func (s *DebugService) Stop() error {
	s.mutex.RLock()
	server := s.server
	s.mutex.RUnlock()
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// Use Handle and HandleFunc to add new services on the internal debugging port.
func (s *DebugService) Handle(pattern string, handler http.Handler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.urls = append(s.urls, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *DebugService) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.Handle(pattern, http.HandlerFunc(handler))
}

// Publish an expvar at /debug/vars, possibly using Func. Publishing the
// same name twice replaces the earlier value.
func (s *DebugService) Publish(name string, v any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.expVars[name] = v
}

func (s *DebugService) indexHandler(w http.ResponseWriter, req *http.Request) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if err := indexTmpl.Execute(w, s.urls); err != nil {
		s.Logger.Warn().WithField("error", err.Error()).Logf("error rendering debug index")
	}
}

var indexTmpl = template.Must(template.New("index").Parse(`
<html>
<head>
<title>traceguard debug</title>
</head>
<body>
<h2>Index</h2>
<table>
{{range .}}
<tr><td><a href="{{.}}?debug=1">{{.}}</a>
{{end}}
</table>
</body>
</html>
`))

func (s *DebugService) expvarHandler(w http.ResponseWriter, r *http.Request) {
	s.mutex.RLock()
	values := make(map[string]any, len(s.expVars))
	for k, v := range s.expVars {
		values[k] = v
	}
	s.mutex.RUnlock()

	for k, v := range values {
		if f, ok := v.(Func); ok {
			values[k] = f()
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	b, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		s.Logger.Warn().WithField("error", err.Error()).Logf("error encoding expvars")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write(b)
}

func memstats() any {
	stats := new(runtime.MemStats)
	runtime.ReadMemStats(stats)
	return *stats
}

// Func is evaluated each time the published variables are read.
type Func func() any
