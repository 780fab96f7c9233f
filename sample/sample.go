package sample

import (
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/internal/health"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
)

// Sampler is a sampling policy. ShouldSample is called inline for every span
// that is started and never blocks.
type Sampler interface {
	sdktrace.Sampler
	Start() error
	Stop() error
}

// Unwrapper is implemented by samplers that delegate to another sampler.
type Unwrapper interface {
	Unwrap() Sampler
}

// As finds the first sampler in the chain starting at s that is a T. It is
// used to reach capabilities such as ForceDecision through a rate limiter.
func As[T any](s Sampler) (T, bool) {
	for s != nil {
		if t, ok := s.(T); ok {
			return t, true
		}
		u, ok := s.(Unwrapper)
		if !ok {
			break
		}
		s = u.Unwrap()
	}
	var zero T
	return zero, false
}

// SamplerFactory is used to create new samplers with common (injected) resources
type SamplerFactory struct {
	Config  config.Config   `inject:""`
	Logger  logger.Logger   `inject:""`
	Metrics metrics.Metrics `inject:"metrics"`
	Health  health.Recorder `inject:""`
	Clock   clockwork.Clock `inject:""`
}

// GetSamplerImplementation builds the sampler named by the configuration.
// The sampler is not started.
func (s *SamplerFactory) GetSamplerImplementation() (Sampler, error) {
	c := s.Config.GetSamplerConfig()
	sampler, err := s.build(c.Type, c)
	if err != nil {
		return nil, err
	}
	s.Logger.Debug().WithString("type", c.Type).Logf("created implementation for sampler %s", sampler.Description())
	return sampler, nil
}

func (s *SamplerFactory) build(samplerType string, c config.SamplerConfig) (Sampler, error) {
	serviceName := s.Config.GetGeneralConfig().ServiceName
	var (
		sampler Sampler
		err     error
	)
	switch samplerType {
	case config.PrioritySamplerType:
		sampler, err = NewPrioritySampler(c.Priority, serviceName, s.Logger, s.prefixed("priority"))
	case config.TailSamplerType:
		sampler, err = NewTailSampler(c.Tail, serviceName, s.Clock, s.Logger, s.prefixed("tail"), s.Health)
	case config.RateLimitedSamplerType:
		if c.RateLimiter.Wraps == config.RateLimitedSamplerType {
			return nil, errors.New("a rate limited sampler cannot wrap another rate limiter")
		}
		var wrapped Sampler
		wrapped, err = s.build(c.RateLimiter.Wraps, c)
		if err == nil {
			sampler, err = NewRateLimitedSampler(c.RateLimiter, wrapped, s.Clock, s.Logger, s.prefixed("ratelimiter"))
		}
	default:
		return nil, errors.Errorf("unknown sampler type %q", samplerType)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s sampler", samplerType)
	}
	return sampler, nil
}

func (s *SamplerFactory) prefixed(prefix string) metrics.Metrics {
	p := metrics.NewMetricsPrefixer(prefix)
	p.Metrics = s.Metrics
	return p
}
