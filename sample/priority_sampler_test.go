package sample

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
)

func ptr[T any](v T) *T {
	return &v
}

func newPriority(t *testing.T, cfg config.PrioritySamplerConfig) *PrioritySampler {
	t.Helper()
	s, err := NewPrioritySampler(cfg, "checkout", &logger.NullLogger{}, newTestMetrics())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s
}

func TestPrioritySamplerManualOverride(t *testing.T) {
	s := newPriority(t, config.PrioritySamplerConfig{DefaultRate: ptr(0.0)})

	res := s.ShouldSample(params(traceIDFromUint64(1), "GET /", ManualPriorityKey.Int(UserKeep)))
	assert.Equal(t, sdktrace.RecordAndSample, res.Decision)
	requirePriority(t, res, UserKeep, MechanismManual)
	_, ok := attr(res, RuleRateKey)
	assert.False(t, ok, "manual decisions carry no rate")

	ctx, err := SetSamplingPriority(context.Background(), UserReject)
	require.NoError(t, err)
	p := params(traceIDFromUint64(2), "GET /")
	p.ParentContext = ctx
	res = s.ShouldSample(p)
	assert.Equal(t, sdktrace.Drop, res.Decision)
	requirePriority(t, res, UserReject, MechanismManual)

	// the context wins over the attributes
	p.Attributes = append(p.Attributes, ManualPriorityKey.Int(UserKeep))
	res = s.ShouldSample(p)
	assert.Equal(t, sdktrace.Drop, res.Decision)
}

func TestPrioritySamplerManualPriorityValues(t *testing.T) {
	s := newPriority(t, config.PrioritySamplerConfig{DefaultRate: ptr(0.0)})

	tests := []struct {
		name     string
		value    any
		keep     bool
		priority int
		manual   bool
	}{
		{"int keep", 1, true, AutoKeep, true},
		{"int reject", 0, false, AutoReject, true},
		{"string", "2", true, UserKeep, true},
		{"float", 2.0, true, UserKeep, true},
		{"fractional float ignored", 1.5, false, AutoReject, false},
		{"out of range ignored", 5, false, AutoReject, false},
		{"garbage ignored", "yes", false, AutoReject, false},
		{"bool ignored", true, false, AutoReject, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p sdktrace.SamplingParameters
			switch v := tt.value.(type) {
			case int:
				p = params(traceIDFromUint64(9), "op", ManualPriorityKey.Int(v))
			case string:
				p = params(traceIDFromUint64(9), "op", ManualPriorityKey.String(v))
			case float64:
				p = params(traceIDFromUint64(9), "op", ManualPriorityKey.Float64(v))
			case bool:
				p = params(traceIDFromUint64(9), "op", ManualPriorityKey.Bool(v))
			}
			res := s.ShouldSample(p)
			assert.Equal(t, tt.keep, res.Decision == sdktrace.RecordAndSample)
			mechanism := MechanismDefault
			if tt.manual {
				mechanism = MechanismManual
			}
			requirePriority(t, res, tt.priority, mechanism)
		})
	}
}

func TestPrioritySamplerManualDisabled(t *testing.T) {
	s := newPriority(t, config.PrioritySamplerConfig{
		DefaultRate:          ptr(0.0),
		EnableManualPriority: config.NewDefaultTrue(false),
	})
	res := s.ShouldSample(params(traceIDFromUint64(1), "GET /", ManualPriorityKey.Int(UserKeep)))
	assert.Equal(t, sdktrace.Drop, res.Decision)
	requirePriority(t, res, AutoReject, MechanismDefault)
}

func TestPrioritySamplerRules(t *testing.T) {
	s := newPriority(t, config.PrioritySamplerConfig{
		DefaultRate: ptr(0.0),
		Rules: []*config.RuleConfig{
			{Name: "no health", Service: "*", Operation: "health", OperationMatch: config.MatchContains, SampleRate: ptr(0.0)},
			{Name: "payments", Service: "payments", SampleRate: ptr(1.0)},
			{Name: "vip", Service: "cart", Operation: "POST /vip", Priority: ptr(UserKeep)},
			{Name: "cart", Service: "cart", SampleRate: ptr(0.0)},
			{Name: "rate only from default", Service: "search"},
		},
	})

	id := traceIDFromUint64(42)
	svc := func(name string) sdktrace.SamplingParameters {
		return params(id, "", semconv.ServiceName(name))
	}

	tests := []struct {
		name      string
		p         sdktrace.SamplingParameters
		keep      bool
		priority  int
		mechanism int
		psr       *float64
	}{
		{"first rule wins", withName(svc("payments"), "GET /healthz"), false, AutoReject, MechanismRule, ptr(0.0)},
		{"service rule", withName(svc("payments"), "POST /pay"), true, AutoKeep, MechanismRule, nil},
		{"forced priority", withName(svc("cart"), "POST /vip"), true, UserKeep, MechanismRule, nil},
		{"exact operation only", withName(svc("cart"), "POST /vip/extra"), false, AutoReject, MechanismRule, ptr(0.0)},
		{"rule without rate uses default", withName(svc("search"), "q"), false, AutoReject, MechanismRule, ptr(0.0)},
		{"no rule matches", withName(svc("catalog"), "list"), false, AutoReject, MechanismDefault, ptr(0.0)},
		{"fallback service name", params(id, "POST /vip"), false, AutoReject, MechanismDefault, ptr(0.0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.ShouldSample(tt.p)
			assert.Equal(t, tt.keep, res.Decision == sdktrace.RecordAndSample)
			requirePriority(t, res, tt.priority, tt.mechanism)
			psr, ok := attr(res, RuleRateKey)
			if tt.psr == nil {
				assert.False(t, ok, "unexpected rate %v", psr.AsFloat64())
			} else {
				require.True(t, ok)
				assert.Equal(t, *tt.psr, psr.AsFloat64())
			}
		})
	}
}

func withName(p sdktrace.SamplingParameters, name string) sdktrace.SamplingParameters {
	p.Name = name
	return p
}

func TestPrioritySamplerServiceNameFallback(t *testing.T) {
	s := newPriority(t, config.PrioritySamplerConfig{
		DefaultRate: ptr(0.0),
		Rules:       []*config.RuleConfig{{Service: "checkout", SampleRate: ptr(1.0)}},
	})
	res := s.ShouldSample(params(traceIDFromUint64(3), "GET /"))
	assert.Equal(t, sdktrace.RecordAndSample, res.Decision)
	requirePriority(t, res, AutoKeep, MechanismRule)
}

func TestPrioritySamplerDefaultRate(t *testing.T) {
	s := newPriority(t, config.PrioritySamplerConfig{})
	res := s.ShouldSample(params(traceIDFromUint64(3), "GET /"))
	assert.Equal(t, sdktrace.RecordAndSample, res.Decision)
	requirePriority(t, res, AutoKeep, MechanismDefault)
	_, ok := attr(res, RuleRateKey)
	assert.False(t, ok, "an unconditional rate is not reported")
}

func TestPrioritySamplerStatistical(t *testing.T) {
	met := newTestMetrics()
	s, err := NewPrioritySampler(config.PrioritySamplerConfig{DefaultRate: ptr(0.5)}, "checkout", &logger.NullLogger{}, met)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	kept := 0
	for i := uint64(1); i <= 2000; i++ {
		res := s.ShouldSample(params(traceIDFromUint64(i), "op"))
		if res.Decision == sdktrace.RecordAndSample {
			kept++
		}
		psr, ok := attr(res, RuleRateKey)
		require.True(t, ok)
		require.Equal(t, 0.5, psr.AsFloat64())
	}
	assert.InDelta(t, 1000, kept, 100)
	assert.Equal(t, kept, met.CounterValue("num_kept"))
	assert.Equal(t, 2000-kept, met.CounterValue("num_dropped"))
	assert.Len(t, met.Histograms["sample_rate"], 2000)

	for i := 0; i < 500; i++ {
		id := randomTraceID(t)
		want := s.ShouldSample(params(id, "op")).Decision
		assert.Equal(t, want, s.ShouldSample(params(id, "other")).Decision, "decision must depend only on the trace id")
	}
}

func TestNewPrioritySamplerValidation(t *testing.T) {
	t.Run("rates are clamped with a warning", func(t *testing.T) {
		lgr := &logger.MockLogger{}
		s, err := NewPrioritySampler(config.PrioritySamplerConfig{
			DefaultRate: ptr(1.5),
			Rules:       []*config.RuleConfig{{Service: "cart", SampleRate: ptr(-0.25)}},
		}, "checkout", lgr, newTestMetrics())
		require.NoError(t, err)
		assert.Equal(t, 1.0, s.defaultRate)
		assert.Equal(t, 0.0, s.rules[0].rate)
		assert.Equal(t, []string{
			"sample rate out of range, clamped to 1",
			"sample rate out of range, clamped to 0",
		}, lgr.Messages(config.WarnLevel))
	})

	tests := []struct {
		name  string
		cfg   config.PrioritySamplerConfig
		field string
	}{
		{"NaN default", config.PrioritySamplerConfig{DefaultRate: ptr(math.NaN())}, "Sampler.Priority.DefaultRate"},
		{"NaN rule rate", config.PrioritySamplerConfig{Rules: []*config.RuleConfig{{}, {SampleRate: ptr(math.NaN())}}}, "Sampler.Priority.Rules[1].SampleRate"},
		{"bad priority", config.PrioritySamplerConfig{Rules: []*config.RuleConfig{{Priority: ptr(3)}}}, "Sampler.Priority.Rules[0].Priority"},
		{"nil rule", config.PrioritySamplerConfig{Rules: []*config.RuleConfig{nil}}, "Sampler.Priority.Rules[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPrioritySampler(tt.cfg, "checkout", &logger.NullLogger{}, newTestMetrics())
			var verr *config.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSetSamplingPriority(t *testing.T) {
	_, err := SetSamplingPriority(context.Background(), 3)
	assert.Error(t, err)

	ctx, err := SetSamplingPriority(context.Background(), UserKeep)
	require.NoError(t, err)
	p, ok := GetSamplingPriority(ctx)
	assert.True(t, ok)
	assert.Equal(t, UserKeep, p)

	_, ok = GetSamplingPriority(context.Background())
	assert.False(t, ok)
}

func TestSamplingResultTraceState(t *testing.T) {
	res := samplingResult(sdktrace.SamplingParameters{}, true, nil)
	assert.Equal(t, sdktrace.RecordAndSample, res.Decision)
	assert.Equal(t, 0, res.Tracestate.Len())
}
