package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/facebookgo/inject"
	"github.com/facebookgo/startstop"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/honeycombio/traceguard/app"
	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/internal/health"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
	"github.com/honeycombio/traceguard/route"
	"github.com/honeycombio/traceguard/sample"
	"github.com/honeycombio/traceguard/service/debug"
)

// set by the build
var BuildID string
var version string

type graphLogger struct {
}

func (g graphLogger) Debugf(format string, v ...any) {
	fmt.Printf(format, v...)
	fmt.Println()
}

func main() {
	opts, err := config.NewCmdEnvOptions(os.Args)
	if err != nil {
		fmt.Printf("Command line parsing error '%s' -- call with --help for usage.\n", err)
		os.Exit(1)
	}

	if BuildID == "" {
		version = "dev"
	} else {
		version = BuildID
	}

	if opts.Version {
		fmt.Println("Version: " + version)
		os.Exit(0)
	}

	c, err := config.NewConfig(opts)
	if err != nil {
		fmt.Printf("%+v\n", err)
		os.Exit(1)
	}
	if opts.Validate {
		fmt.Println("Config validated successfully.")
		os.Exit(0)
	}

	// get desired implementation for each dependency to inject
	lgr := logger.GetLoggerImplementation(c)
	logLevel := c.GetLoggerLevel().String()
	if err := lgr.SetLevel(logLevel); err != nil {
		fmt.Printf("unable to set logging level: %v\n", err)
		os.Exit(1)
	}

	// the exporters are always injected so that they start before the
	// metrics singleton forwards to them, but only do work when enabled
	var promMetrics metrics.Metrics = &metrics.NullMetrics{}
	var otelMetrics metrics.Metrics = &metrics.NullMetrics{}
	if c.GetPrometheusMetricsConfig().Enabled {
		promMetrics = &metrics.PromMetrics{}
	}
	if c.GetOTelMetricsConfig().Enabled {
		otelMetrics = &metrics.OTelMetrics{}
	}
	metricsSingleton := metrics.NewMultiMetrics()

	a := app.App{
		Version: version,
	}

	var g inject.Graph
	if opts.Debug {
		g.Logger = graphLogger{}
	}
	objects := []*inject.Object{
		{Value: c},
		{Value: lgr},
		{Value: clockwork.NewRealClock()},
		{Value: metricsSingleton, Name: "metrics"},
		{Value: promMetrics, Name: "promMetrics"},
		{Value: otelMetrics, Name: "otelMetrics"},
		{Value: version, Name: "version"},
		{Value: &sample.SamplerFactory{}},
		{Value: &health.Health{}},
		{Value: &route.Router{}},
		{Value: &a},
	}
	var debugService *debug.DebugService
	if opts.Debug {
		debugService = &debug.DebugService{}
		objects = append(objects, &inject.Object{Value: debugService})
	}
	if err := g.Provide(objects...); err != nil {
		fmt.Printf("failed to provide injection graph. error: %+v\n", err)
		os.Exit(1)
	}
	if err := g.Populate(); err != nil {
		fmt.Printf("failed to populate injection graph. error: %+v\n", err)
		os.Exit(1)
	}

	// the logger provided to startstop must be valid before any service is
	// started, meaning it can't rely on injected configs. make a custom logger
	// just for this step
	ststLogger := logrus.New()
	if level, err := logrus.ParseLevel(logLevel); err == nil {
		ststLogger.SetLevel(level)
	}

	defer startstop.Stop(g.Objects(), ststLogger)
	if err := startstop.Start(g.Objects(), ststLogger); err != nil {
		fmt.Printf("failed to start injected dependencies. error: %+v\n", err)
		os.Exit(1)
	}

	metricsSingleton.Store("MAX_BUFFERED_TRACES", float64(c.GetSamplerConfig().Tail.MaxBufferedTraces))

	if debugService != nil {
		publishSamplerVars(debugService, a.Sampler())
	}

	// set up signal channel to exit
	sigsToExit := make(chan os.Signal, 1)
	signal.Notify(sigsToExit, syscall.SIGINT, syscall.SIGTERM)

	// block on our signal handler to exit
	sig := <-sigsToExit
	a.Logger.Info().Logf("Caught signal \"%s\"", sig)
}

// publishSamplerVars exposes the running sampler on the debug service.
func publishSamplerVars(ds *debug.DebugService, s sample.Sampler) {
	ds.Publish("sampler", s.Description())
	if ts, ok := sample.As[*sample.TailSampler](s); ok {
		ds.Publish("tail_stats", debug.Func(func() any { return ts.Stats() }))
	}
	if rl, ok := sample.As[*sample.RateLimitedSampler](s); ok {
		ds.Publish("ratelimiter", debug.Func(func() any { return rl.Bucket() }))
	}
}
