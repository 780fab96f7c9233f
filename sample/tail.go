package sample

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/generics"
	"github.com/honeycombio/traceguard/internal/cycle"
	"github.com/honeycombio/traceguard/internal/health"
	"github.com/honeycombio/traceguard/internal/tracestore"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
)

const tailHealthSubsystem = "tail_sampler"

// Reasons recorded with tail decisions.
const (
	reasonError    = "error"
	reasonPolicy   = "policy"
	reasonFallback = "fallback"
	reasonTimeout  = "timeout"
	reasonForced   = "forced"
)

// TailSampler defers the decision for a trace until its spans show that it
// must be kept, a caller forces a decision, or the decision timeout expires.
// While a trace is pending its spans are sampled optimistically so that
// children of an undecided trace are not lost.
type TailSampler struct {
	Logger  logger.Logger
	Metrics metrics.Metrics
	Health  health.Recorder

	clock        clockwork.Clock
	store        *tracestore.Store
	policies     *policySet
	serviceName  string
	timeout      time.Duration
	fallbackRate float64
	sampleErrors bool
	shards       int
	maxBuffered  int

	cycle *cycle.Cycle
	wg    conc.WaitGroup
}

var _ Sampler = (*TailSampler)(nil)

// TailStats describes the pending and decided traces.
type TailStats struct {
	tracestore.Stats
	DecisionTimeout string   `json:"decision_timeout"`
	PolicyServices  []string `json:"policy_services"`
}

// NewTailSampler validates cfg and creates the sampler with an empty store.
// The maintenance loop starts with Start.
func NewTailSampler(cfg config.TailSamplerConfig, serviceName string, clock clockwork.Clock, lgr logger.Logger, met metrics.Metrics, rec health.Recorder) (*TailSampler, error) {
	if cfg.MaxBufferedTraces <= 0 {
		return nil, &config.ValidationError{Field: "Sampler.Tail.MaxBufferedTraces", Message: fmt.Sprintf("must be positive, got %d", cfg.MaxBufferedTraces)}
	}
	fallbackRate, err := clampRate("Sampler.Tail.FallbackRate", cfg.GetFallbackRate(), lgr)
	if err != nil {
		return nil, err
	}
	policies, err := newPolicySet(cfg.Policies, lgr)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	shards := cfg.GetStoreShards()
	return &TailSampler{
		Logger:       lgr,
		Metrics:      met,
		Health:       rec,
		clock:        clock,
		policies:     policies,
		serviceName:  serviceName,
		timeout:      cfg.GetDecisionTimeout(),
		fallbackRate: fallbackRate,
		sampleErrors: cfg.SampleErrors.Get(),
		shards:       shards,
		maxBuffered:  cfg.MaxBufferedTraces,
		store: tracestore.New(tracestore.Options{
			Shards:      shards,
			MaxBuffered: cfg.MaxBufferedTraces,
			MaxDecided:  cfg.GetMaxDecidedTraces(),
		}, clock),
	}, nil
}

func (t *TailSampler) Start() error {
	t.Logger.Debug().Logf("Starting TailSampler")
	defer func() { t.Logger.Debug().Logf("Finished starting TailSampler") }()

	for _, name := range []string{"num_buffered", "num_replayed", "num_error_kept", "num_policy_kept",
		"num_policy_dropped", "num_fallback", "num_forced", "num_timed_out", "num_expired"} {
		t.Metrics.Register(name, metrics.Counter)
	}
	t.Metrics.Register("buffered_traces", metrics.Gauge)
	t.Metrics.Register("decided_traces", metrics.Gauge)
	t.Metrics.Register("store_bytes", metrics.Gauge)
	t.Metrics.Store("store_shards", float64(t.shards))

	for _, p := range t.policies.all {
		if err := p.start(); err != nil {
			return fmt.Errorf("starting tail policy %s: %w", p.name, err)
		}
		if p.dynamic != nil {
			for name := range p.dynamic.GetMetrics(p.metricsPrefix) {
				t.Metrics.Register(name, metrics.Gauge)
			}
		}
	}

	if t.Health != nil {
		// a few missed sweeps mean the loop is stuck
		t.Health.Register(tailHealthSubsystem, 3*t.timeout)
		t.Health.Ready(tailHealthSubsystem, true)
	}

	t.cycle = cycle.NewCycle(t.clock, t.timeout)
	t.wg.Go(func() {
		if err := t.cycle.Run(context.Background(), t.sweep); err != nil {
			t.Logger.Error().Logf("tail sampler maintenance loop stopped: %s", err)
		}
	})
	return nil
}

// Stop ends the maintenance loop and waits for it to exit. Pending traces
// stay in the store.
func (t *TailSampler) Stop() error {
	if t.cycle != nil {
		t.cycle.Stop()
		t.wg.Wait()
	}
	if t.Health != nil {
		t.Health.Unregister(tailHealthSubsystem)
	}
	for _, p := range t.policies.all {
		if err := p.stop(); err != nil {
			t.Logger.Warn().WithString("policy", p.name).Logf("failed to stop tail policy: %s", err)
		}
	}
	return nil
}

func (t *TailSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if d, ok := t.store.Decided(p.TraceID); ok {
		t.Metrics.Increment("num_replayed")
		return t.replay(p, d)
	}

	service := spanService(p.Attributes, t.serviceName)
	isError := isErrorSpan(p.Attributes)

	if t.sampleErrors && isError {
		t.Metrics.Increment("num_error_kept")
		d, _ := t.store.Decide(p.TraceID, tracestore.Decision{
			Keep:      true,
			Priority:  AutoKeep,
			Mechanism: MechanismRule,
			Reason:    reasonError,
		})
		return t.replay(p, d)
	}

	if pol := t.policies.lookup(service); pol != nil {
		keep, rate, hasRate := pol.decide(service, p.Name)
		if keep {
			t.Metrics.Increment("num_policy_kept")
		} else {
			t.Metrics.Increment("num_policy_dropped")
		}
		d, _ := t.store.Decide(p.TraceID, tracestore.Decision{
			Keep:      keep,
			Priority:  keepPriority(keep),
			Mechanism: MechanismRule,
			Rate:      rate,
			HasRate:   hasRate,
			Reason:    reasonPolicy,
		})
		return t.replay(p, d)
	}

	res, d := t.store.Buffer(p.TraceID, tracestore.SpanSummary{
		Name:    p.Name,
		Kind:    p.Kind,
		Service: service,
		Error:   isError,
	})
	switch res {
	case tracestore.Buffered:
		t.Metrics.Increment("num_buffered")
		return samplingResult(p, true, decisionAttributes(AutoKeep, MechanismRule, noRate, TailBufferedKey.Bool(true)))
	case tracestore.AlreadyDecided:
		t.Metrics.Increment("num_replayed")
		return t.replay(p, d)
	default:
		t.Metrics.Increment("num_fallback")
		t.Logger.Debug().WithString("trace_id", p.TraceID.String()).Logf("tail buffer full, deciding immediately")
		d, _ := t.store.Decide(p.TraceID, t.fallbackDecision(p.TraceID, reasonFallback))
		return t.replay(p, d)
	}
}

func (t *TailSampler) fallbackDecision(id trace.TraceID, reason string) tracestore.Decision {
	keep := Sampled(id, t.fallbackRate)
	return tracestore.Decision{
		Keep:      keep,
		Priority:  keepPriority(keep),
		Mechanism: MechanismRule,
		Rate:      t.fallbackRate,
		HasRate:   t.fallbackRate != 1,
		Reason:    reason,
	}
}

// replay turns a stored decision into a sampling result.
func (t *TailSampler) replay(p sdktrace.SamplingParameters, d tracestore.Decision) sdktrace.SamplingResult {
	rate := noRate
	if d.HasRate {
		rate = d.Rate
	}
	var attrs []attribute.KeyValue
	if d.Reason == reasonFallback || d.Reason == reasonTimeout {
		attrs = decisionAttributes(d.Priority, d.Mechanism, rate, TailFallbackKey.Bool(true))
	} else {
		attrs = decisionAttributes(d.Priority, d.Mechanism, rate)
	}
	return samplingResult(p, d.Keep, attrs)
}

// ForceDecision overrides the decision for a buffered or decided trace. It
// returns false if the sampler has no record of the trace.
func (t *TailSampler) ForceDecision(id trace.TraceID, keep bool) bool {
	prio := UserReject
	if keep {
		prio = UserKeep
	}
	ok := t.store.Force(id, tracestore.Decision{
		Keep:      keep,
		Priority:  prio,
		Mechanism: MechanismManual,
		Reason:    reasonForced,
	})
	if ok {
		t.Metrics.Increment("num_forced")
	}
	t.Logger.Debug().WithFields(map[string]any{
		"trace_id": id.String(),
		"keep":     keep,
		"found":    ok,
	}).Logf("forced tail decision")
	return ok
}

func (t *TailSampler) sweep(context.Context) error {
	start := t.clock.Now()
	res := t.store.Sweep(t.timeout, func(rec *tracestore.Record) tracestore.Decision {
		return t.fallbackDecision(rec.TraceID, reasonTimeout)
	})
	t.Metrics.Count("num_timed_out", res.Promoted)
	t.Metrics.Count("num_expired", res.Expired)

	st := t.store.Stats()
	t.Metrics.Gauge("buffered_traces", st.Buffered)
	t.Metrics.Gauge("decided_traces", st.Decided)
	t.Metrics.Gauge("store_bytes", st.ApproxBytes)
	for _, p := range t.policies.all {
		if p.dynamic == nil {
			continue
		}
		for name, val := range p.dynamic.GetMetrics(p.metricsPrefix) {
			t.Metrics.Gauge(name, val)
		}
	}

	if t.Health != nil {
		t.Health.Ready(tailHealthSubsystem, true)
	}
	t.Logger.Debug().WithFields(map[string]any{
		"timed_out": res.Promoted,
		"expired":   res.Expired,
		"buffered":  st.Buffered,
		"decided":   st.Decided,
		"duration":  t.clock.Since(start),
	}).Logf("tail sampler sweep finished")
	return nil
}

// Stats returns the size of the store.
func (t *TailSampler) Stats() TailStats {
	services := generics.NewSet[string]()
	for s := range t.policies.byService {
		services.Add(s)
	}
	return TailStats{
		Stats:           t.store.Stats(),
		DecisionTimeout: t.timeout.String(),
		PolicyServices:  generics.Sorted(services),
	}
}

// Clear forgets every pending and decided trace.
func (t *TailSampler) Clear() {
	t.store.Clear()
	t.Logger.Info().Logf("tail sampler store cleared")
}

// RunMaintenance runs one sweep of the maintenance loop and waits for it.
func (t *TailSampler) RunMaintenance() {
	if t.cycle != nil {
		t.cycle.RunOnce()
	}
}

func (t *TailSampler) Description() string {
	return fmt.Sprintf("TailSampler{timeout=%s,maxBuffered=%d,policies=%d}", t.timeout, t.maxBuffered, len(t.policies.all))
}
