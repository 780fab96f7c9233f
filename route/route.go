package route

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pelletier/go-toml/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/internal/health"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
	"github.com/honeycombio/traceguard/sample"
)

const (
	traceIDShortLength = 16
	traceIDLongLength  = 32
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Router serves the admin API: health, version, and the operations the
// configured sampler supports.
type Router struct {
	Config  config.Config   `inject:""`
	Logger  logger.Logger   `inject:""`
	Metrics metrics.Metrics `inject:"metrics"`
	Health  health.Reporter `inject:""`

	// Sampler is set by the app once the configured sampler is built.
	Sampler sample.Sampler
	// TracerProvider, when set, traces admin requests. The app sets it to
	// the provider that samples with Sampler.
	TracerProvider trace.TracerProvider

	// version is set on startup so that the router may answer HTTP requests for
	// the version
	versionStr string

	server *http.Server
	doneWG sync.WaitGroup
}

func (r *Router) SetVersion(ver string) {
	r.versionStr = ver
}

// Handler returns the admin API without starting a server.
func (r *Router) Handler() http.Handler {
	muxxer := mux.NewRouter()

	muxxer.Use(r.setResponseHeaders)
	muxxer.Use(r.requestLogger)
	muxxer.Use(r.panicCatcher)

	muxxer.HandleFunc("/alive", r.alive).Name("local health")
	muxxer.HandleFunc("/ready", r.ready).Name("local readiness")
	muxxer.HandleFunc("/version", r.version).Name("report version info")
	r.only(muxxer, "GET", "/config", r.getEffectiveConfig, "get effective config")

	samplerMuxxer := muxxer.PathPrefix("/sampler/").Subrouter()
	r.only(samplerMuxxer, "GET", "/stats", r.stats, "sampler stats")
	r.only(samplerMuxxer, "GET", "/config/{format}", r.getSamplerConfig, "get formatted sampler config")
	r.only(samplerMuxxer, "POST", "/traces/{traceID}/decision", r.forceDecision, "force a tail decision")
	r.only(samplerMuxxer, "GET", "/ratelimiter", r.bucket, "rate limiter bucket")
	r.only(samplerMuxxer, "POST", "/ratelimiter/reset", r.resetBucket, "reset rate limiter bucket")
	r.only(samplerMuxxer, "POST", "/clear", r.clear, "clear tail store")

	if r.TracerProvider == nil {
		return muxxer
	}
	return otelhttp.NewHandler(muxxer, "admin",
		otelhttp.WithTracerProvider(r.TracerProvider),
		otelhttp.WithSpanNameFormatter(func(operation string, req *http.Request) string {
			return operation + " " + req.Method + " " + req.URL.Path
		}),
	)
}

// only routes method on path to h and answers any other method with 405.
// A subrouter reports a method mismatch as 404 once a later route of the
// same prefix is tried, so the rejection is a route of its own.
func (r *Router) only(m *mux.Router, method, path string, h http.HandlerFunc, name string) {
	m.HandleFunc(path, h).Methods(method).Name(name)
	m.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Allow", method)
		r.handlerReturnWithError(w, ErrMethodNotAllowed, fmt.Errorf("%s %s", req.Method, req.URL.Path))
	}).Name(name + " (method not allowed)")
}

// LnS spins up the Listen and Serve portion of the router.
func (r *Router) LnS() {
	r.Metrics.Register("admin_requests", metrics.Counter)
	r.Metrics.Register("admin_errors", metrics.Counter)

	listenAddr := r.Config.GetGeneralConfig().AdminListenAddr
	r.Logger.Info().Logf("Listening on %s", listenAddr)
	r.server = &http.Server{
		Addr:              listenAddr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.doneWG.Add(1)
	go func() {
		defer r.doneWG.Done()

		err := r.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Logger.Error().Logf("failed to ListenAndServe: %s", err)
		}
	}()
}

func (r *Router) Stop() error {
	if r.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := r.server.Shutdown(ctx); err != nil {
		return err
	}
	r.doneWG.Wait()
	return nil
}

func (r *Router) alive(w http.ResponseWriter, req *http.Request) {
	r.Logger.Debug().Logf("answered /alive check")
	alive := r.Health.IsAlive()
	if !alive {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	r.writeJSON(w, map[string]any{"source": "traceguard", "alive": yesNo(alive)})
}

func (r *Router) ready(w http.ResponseWriter, req *http.Request) {
	r.Logger.Debug().Logf("answered /ready check")
	ready := r.Health.IsReady()
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	r.writeJSON(w, map[string]any{"source": "traceguard", "ready": yesNo(ready)})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (r *Router) version(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, map[string]string{"source": "traceguard", "version": r.versionStr})
}

type statsResponse struct {
	Description string              `json:"description"`
	Tail        *sample.TailStats   `json:"tail,omitempty"`
	RateLimiter *sample.BucketState `json:"ratelimiter,omitempty"`
}

func (r *Router) stats(w http.ResponseWriter, req *http.Request) {
	resp := statsResponse{Description: r.Sampler.Description()}
	if ts, ok := sample.As[*sample.TailSampler](r.Sampler); ok {
		st := ts.Stats()
		resp.Tail = &st
	}
	if rl, ok := sample.As[*sample.RateLimitedSampler](r.Sampler); ok {
		b := rl.Bucket()
		resp.RateLimiter = &b
	}
	r.writeJSON(w, resp)
}

func (r *Router) getSamplerConfig(w http.ResponseWriter, req *http.Request) {
	format := strings.ToLower(mux.Vars(req)["format"])
	r.marshalToFormat(w, map[string]any{"Sampler": r.Config.GetSamplerConfig()}, format)
}

// getEffectiveConfig reports the whole configuration as the process sees it,
// with defaults and command line overrides applied.
func (r *Router) getEffectiveConfig(w http.ResponseWriter, req *http.Request) {
	body, err := config.SerializeToYAML(r.Config)
	if err != nil {
		r.handlerReturnWithError(w, ErrJSONBuildFailed, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write([]byte(body))
}

func (r *Router) marshalToFormat(w http.ResponseWriter, obj any, format string) {
	var body []byte
	var err error
	switch format {
	case "json":
		body, err = json.Marshal(obj)
	case "toml":
		body, err = toml.Marshal(obj)
	case "yaml":
		body, err = yaml.Marshal(obj)
	default:
		r.handlerReturnWithError(w, ErrInvalidParam, fmt.Errorf("invalid format '%s' when marshaling", format))
		return
	}
	if err != nil {
		r.handlerReturnWithError(w, ErrJSONBuildFailed, fmt.Errorf("marshaling to %s: %w", format, err))
		return
	}
	w.Header().Set("Content-Type", "application/"+format)
	w.Write(body)
}

type decisionResponse struct {
	TraceID string `json:"trace_id"`
	Keep    bool   `json:"keep"`
}

func (r *Router) forceDecision(w http.ResponseWriter, req *http.Request) {
	ts, ok := sample.As[*sample.TailSampler](r.Sampler)
	if !ok {
		r.handlerReturnWithError(w, ErrNotSupported, errors.New("the sampler does not buffer traces"))
		return
	}
	traceID, err := parseTraceID(mux.Vars(req)["traceID"])
	if err != nil {
		r.handlerReturnWithError(w, ErrInvalidTraceID, err)
		return
	}
	keep, err := strconv.ParseBool(req.URL.Query().Get("keep"))
	if err != nil {
		r.handlerReturnWithError(w, ErrInvalidParam, fmt.Errorf("keep must be true or false: %w", err))
		return
	}
	if !ts.ForceDecision(traceID, keep) {
		r.handlerReturnWithError(w, ErrTraceNotFound, fmt.Errorf("trace %s is neither buffered nor decided", traceID))
		return
	}
	r.writeJSON(w, decisionResponse{TraceID: traceID.String(), Keep: keep})
}

// parseTraceID accepts a 128-bit id, or a 64-bit id that is widened with
// leading zeros.
func parseTraceID(s string) (trace.TraceID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch len(s) {
	case traceIDShortLength:
		s = strings.Repeat("0", traceIDLongLength-traceIDShortLength) + s
	case traceIDLongLength:
	default:
		return trace.TraceID{}, fmt.Errorf("trace id %q must be %d or %d hex characters", s, traceIDShortLength, traceIDLongLength)
	}
	return trace.TraceIDFromHex(s)
}

func (r *Router) bucket(w http.ResponseWriter, req *http.Request) {
	rl, ok := sample.As[*sample.RateLimitedSampler](r.Sampler)
	if !ok {
		r.handlerReturnWithError(w, ErrNotSupported, errors.New("the sampler is not rate limited"))
		return
	}
	r.writeJSON(w, rl.Bucket())
}

func (r *Router) resetBucket(w http.ResponseWriter, req *http.Request) {
	rl, ok := sample.As[*sample.RateLimitedSampler](r.Sampler)
	if !ok {
		r.handlerReturnWithError(w, ErrNotSupported, errors.New("the sampler is not rate limited"))
		return
	}
	capacity := rl.Bucket().Capacity
	if v := req.URL.Query().Get("capacity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			r.handlerReturnWithError(w, ErrInvalidParam, fmt.Errorf("capacity must be a non-negative integer, got %q", v))
			return
		}
		capacity = n
	}
	rl.ResetBucket(capacity)
	r.writeJSON(w, rl.Bucket())
}

func (r *Router) clear(w http.ResponseWriter, req *http.Request) {
	ts, ok := sample.As[*sample.TailSampler](r.Sampler)
	if !ok {
		r.handlerReturnWithError(w, ErrNotSupported, errors.New("the sampler does not buffer traces"))
		return
	}
	ts.Clear()
	r.writeJSON(w, ts.Stats())
}

func (r *Router) writeJSON(w http.ResponseWriter, obj any) {
	body, err := json.Marshal(obj)
	if err != nil {
		r.handlerReturnWithError(w, ErrJSONBuildFailed, err)
		return
	}
	w.Write(body)
}
