package sample

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
)

func newTestMetrics() *metrics.MockMetrics {
	m := &metrics.MockMetrics{}
	m.Start()
	return m
}

func params(id trace.TraceID, name string, attrs ...attribute.KeyValue) sdktrace.SamplingParameters {
	return sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       id,
		Name:          name,
		Kind:          trace.SpanKindServer,
		Attributes:    attrs,
	}
}

// attr returns the value of key in the result's attributes.
func attr(res sdktrace.SamplingResult, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range res.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func requirePriority(t *testing.T, res sdktrace.SamplingResult, priority, mechanism int) {
	t.Helper()
	p, ok := attr(res, SamplingPriorityKey)
	require.True(t, ok, "missing sampling priority")
	assert.Equal(t, int64(priority), p.AsInt64(), "priority")
	m, ok := attr(res, DecisionMakerKey)
	require.True(t, ok, "missing decision maker")
	assert.Equal(t, int64(mechanism), m.AsInt64(), "mechanism")
}

// countingSampler counts the calls it receives and samples everything.
type countingSampler struct {
	mut     sync.Mutex
	calls   int
	started bool
	stopped bool
}

func (c *countingSampler) Start() error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.started = true
	return nil
}

func (c *countingSampler) Stop() error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.stopped = true
	return nil
}

func (c *countingSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	c.mut.Lock()
	c.calls++
	c.mut.Unlock()
	return samplingResult(p, true, decisionAttributes(AutoKeep, MechanismDefault, noRate))
}

func (c *countingSampler) Description() string {
	return "countingSampler"
}

func (c *countingSampler) Calls() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.calls
}

type fakeRecorder struct {
	mut        sync.Mutex
	registered map[string]time.Duration
	ready      map[string]bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{registered: make(map[string]time.Duration), ready: make(map[string]bool)}
}

func (f *fakeRecorder) Register(subsystem string, timeout time.Duration) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.registered[subsystem] = timeout
}

func (f *fakeRecorder) Unregister(subsystem string) {
	f.mut.Lock()
	defer f.mut.Unlock()
	delete(f.registered, subsystem)
	delete(f.ready, subsystem)
}

func (f *fakeRecorder) Ready(subsystem string, ready bool) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.ready[subsystem] = ready
}

func (f *fakeRecorder) isRegistered(subsystem string) bool {
	f.mut.Lock()
	defer f.mut.Unlock()
	_, ok := f.registered[subsystem]
	return ok
}

func (f *fakeRecorder) isReady(subsystem string) bool {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.ready[subsystem]
}

func newFactory(sc config.SamplerConfig) *SamplerFactory {
	return &SamplerFactory{
		Config: &config.MockConfig{
			GeneralConfig: config.GeneralConfig{ServiceName: "checkout"},
			SamplerConfig: sc,
		},
		Logger:  &logger.NullLogger{},
		Metrics: newTestMetrics(),
		Health:  newFakeRecorder(),
		Clock:   clockwork.NewFakeClock(),
	}
}

func TestGetSamplerImplementation(t *testing.T) {
	tail := config.TailSamplerConfig{MaxBufferedTraces: 10}
	limiter := config.RateLimiterConfig{MaxPerSecond: 5, Wraps: config.TailSamplerType}

	t.Run("priority", func(t *testing.T) {
		s, err := newFactory(config.SamplerConfig{Type: config.PrioritySamplerType}).GetSamplerImplementation()
		require.NoError(t, err)
		assert.IsType(t, &PrioritySampler{}, s)
	})

	t.Run("tail", func(t *testing.T) {
		s, err := newFactory(config.SamplerConfig{Type: config.TailSamplerType, Tail: tail}).GetSamplerImplementation()
		require.NoError(t, err)
		ts, ok := s.(*TailSampler)
		require.True(t, ok)
		assert.Equal(t, "checkout", ts.serviceName)
	})

	t.Run("rate limited tail", func(t *testing.T) {
		s, err := newFactory(config.SamplerConfig{
			Type:        config.RateLimitedSamplerType,
			RateLimiter: limiter,
			Tail:        tail,
		}).GetSamplerImplementation()
		require.NoError(t, err)
		rl, ok := s.(*RateLimitedSampler)
		require.True(t, ok)
		assert.IsType(t, &TailSampler{}, rl.Unwrap())
		assert.Contains(t, s.Description(), "TailSampler")
	})

	t.Run("rate limiter wrapping itself", func(t *testing.T) {
		_, err := newFactory(config.SamplerConfig{
			Type:        config.RateLimitedSamplerType,
			RateLimiter: config.RateLimiterConfig{MaxPerSecond: 5, Wraps: config.RateLimitedSamplerType},
		}).GetSamplerImplementation()
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := newFactory(config.SamplerConfig{Type: "reservoir"}).GetSamplerImplementation()
		assert.ErrorContains(t, err, `unknown sampler type "reservoir"`)
	})

	t.Run("invalid rule names the field", func(t *testing.T) {
		bad := 7
		_, err := newFactory(config.SamplerConfig{
			Type: config.PrioritySamplerType,
			Priority: config.PrioritySamplerConfig{
				Rules: []*config.RuleConfig{{Service: "checkout", Priority: &bad}},
			},
		}).GetSamplerImplementation()
		require.Error(t, err)
		var verr *config.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Sampler.Priority.Rules[0].Priority", verr.Field)
		assert.ErrorContains(t, err, "creating priority sampler")
	})
}

func TestAs(t *testing.T) {
	inner := &countingSampler{}
	rl, err := NewRateLimitedSampler(config.RateLimiterConfig{MaxPerSecond: 1}, inner, clockwork.NewFakeClock(), &logger.NullLogger{}, newTestMetrics())
	require.NoError(t, err)

	got, ok := As[*countingSampler](rl)
	require.True(t, ok)
	assert.Same(t, inner, got)

	limiter, ok := As[*RateLimitedSampler](rl)
	require.True(t, ok)
	assert.Same(t, rl, limiter)

	_, ok = As[*TailSampler](rl)
	assert.False(t, ok)

	_, ok = As[*TailSampler](nil)
	assert.False(t, ok)
}
