package sample

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
)

// PrioritySampler decides each span on its own from a default rate, an
// ordered list of service and operation rules, and an optional manual
// priority. It keeps no per-trace state.
type PrioritySampler struct {
	Logger  logger.Logger
	Metrics metrics.Metrics

	defaultRate  float64
	manual       bool
	rules        []*rule
	serviceName  string
	configString string
}

var _ Sampler = (*PrioritySampler)(nil)

// NewPrioritySampler validates cfg. Out of range rates are clamped; NaN rates
// and invalid priorities are returned as *config.ValidationError.
func NewPrioritySampler(cfg config.PrioritySamplerConfig, serviceName string, lgr logger.Logger, met metrics.Metrics) (*PrioritySampler, error) {
	rate, err := clampRate("Sampler.Priority.DefaultRate", cfg.GetDefaultRate(), lgr)
	if err != nil {
		return nil, err
	}
	rules, err := compileRules(cfg.Rules, lgr)
	if err != nil {
		return nil, err
	}
	return &PrioritySampler{
		Logger:       lgr,
		Metrics:      met,
		defaultRate:  rate,
		manual:       cfg.EnableManualPriority.Get(),
		rules:        rules,
		serviceName:  serviceName,
		configString: fmt.Sprintf("PrioritySampler{defaultRate=%v,rules=%d,manual=%t}", rate, len(rules), cfg.EnableManualPriority.Get()),
	}, nil
}

func (s *PrioritySampler) Start() error {
	s.Logger.Debug().Logf("Starting PrioritySampler")
	defer func() { s.Logger.Debug().Logf("Finished starting PrioritySampler") }()

	s.Metrics.Register("num_kept", metrics.Counter)
	s.Metrics.Register("num_dropped", metrics.Counter)
	s.Metrics.Register("num_manual", metrics.Counter)
	s.Metrics.Register("sample_rate", metrics.Histogram)
	return nil
}

func (s *PrioritySampler) Stop() error {
	return nil
}

func (s *PrioritySampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if s.manual {
		if prio, ok := manualPriority(p); ok {
			s.Metrics.Increment("num_manual")
			return s.result(p, prio > 0, prio, MechanismManual, noRate)
		}
	}

	rate := s.defaultRate
	mechanism := MechanismDefault
	if r := firstMatch(s.rules, spanService(p.Attributes, s.serviceName), p.Name); r != nil {
		mechanism = MechanismRule
		if r.hasRate {
			rate = r.rate
		}
		if r.hasPriority {
			return s.result(p, r.priority > 0, r.priority, mechanism, noRate)
		}
	}

	keep := Sampled(p.TraceID, rate)
	psr := noRate
	if rate != 1 {
		psr = rate
		s.Metrics.Histogram("sample_rate", rate)
	}
	return s.result(p, keep, keepPriority(keep), mechanism, psr)
}

func (s *PrioritySampler) result(p sdktrace.SamplingParameters, keep bool, priority, mechanism int, rate float64) sdktrace.SamplingResult {
	if keep {
		s.Metrics.Increment("num_kept")
	} else {
		s.Metrics.Increment("num_dropped")
	}
	return samplingResult(p, keep, decisionAttributes(priority, mechanism, rate))
}

func (s *PrioritySampler) Description() string {
	return s.configString
}
