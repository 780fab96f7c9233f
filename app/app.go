package app

import (
	"context"
	"strconv"
	"time"

	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
	"github.com/honeycombio/traceguard/route"
	"github.com/honeycombio/traceguard/sample"
)

type App struct {
	Config         config.Config          `inject:""`
	Logger         logger.Logger          `inject:""`
	Metrics        metrics.Metrics        `inject:"metrics"`
	SamplerFactory *sample.SamplerFactory `inject:""`
	AdminRouter    *route.Router          `inject:""`

	// Version is the build ID for traceguard so that the running process may
	// answer requests for the version
	Version string

	sampler  sample.Sampler
	provider *sdktrace.TracerProvider
}

// Start builds and starts the configured sampler, installs it in a tracer
// provider and starts the admin API. It does not block.
func (a *App) Start() error {
	a.Logger.Debug().Logf("Starting up App...")

	a.Metrics.Register("config_hash", metrics.Gauge)
	a.Metrics.Gauge("config_hash", configHashMetric(a.Config.GetHash()))

	s, err := a.SamplerFactory.GetSamplerImplementation()
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	a.sampler = s

	general := a.Config.GetGeneralConfig()
	res := sdkresource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(general.ServiceName),
		semconv.ServiceVersion(a.Version),
	)
	a.provider = sdktrace.NewTracerProvider(
		sdktrace.WithSampler(s),
		sdktrace.WithResource(res),
	)

	a.AdminRouter.Sampler = s
	a.AdminRouter.TracerProvider = a.provider
	a.AdminRouter.SetVersion(a.Version)
	a.AdminRouter.LnS()

	a.Logger.Info().WithFields(map[string]any{
		"sampler": s.Description(),
		"version": a.Version,
	}).Logf("traceguard started")
	return nil
}

func (a *App) Stop() error {
	a.Logger.Debug().Logf("Shutting down App...")
	if a.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.provider.Shutdown(ctx); err != nil {
			a.Logger.Error().Logf("failed to shut down tracer provider: %s", err)
		}
	}
	if a.sampler != nil {
		return a.sampler.Stop()
	}
	return nil
}

// Sampler returns the running sampler.
func (a *App) Sampler() sample.Sampler {
	return a.sampler
}

// Tracer returns a tracer whose spans are sampled by the running sampler.
func (a *App) Tracer(name string) trace.Tracer {
	return a.provider.Tracer(name)
}

// configHashMetric turns the last four hex digits of the config hash into a
// number that can be compared across processes.
func configHashMetric(hash string) float64 {
	if len(hash) < 4 {
		return 0
	}
	n, err := strconv.ParseInt(hash[len(hash)-4:], 16, 64)
	if err != nil {
		return 0
	}
	return float64(n)
}
