package sample

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
)

func newLimiter(t *testing.T, cfg config.RateLimiterConfig) (*RateLimitedSampler, *countingSampler, *clockwork.FakeClock, *metrics.MockMetrics) {
	t.Helper()
	inner := &countingSampler{}
	clock := clockwork.NewFakeClock()
	met := newTestMetrics()
	rl, err := NewRateLimitedSampler(cfg, inner, clock, &logger.NullLogger{}, met)
	require.NoError(t, err)
	require.NoError(t, rl.Start())
	t.Cleanup(func() { rl.Stop() })
	return rl, inner, clock, met
}

func TestRateLimitedSamplerOneToken(t *testing.T) {
	rl, inner, clock, met := newLimiter(t, config.RateLimiterConfig{MaxPerSecond: 1, BurstCapacity: 1})

	first := rl.ShouldSample(params(traceIDFromUint64(1), "a"))
	second := rl.ShouldSample(params(traceIDFromUint64(2), "b"))

	assert.Equal(t, sdktrace.RecordAndSample, first.Decision)
	requirePriority(t, first, AutoKeep, MechanismDefault)

	assert.Equal(t, sdktrace.Drop, second.Decision)
	requirePriority(t, second, AutoReject, MechanismRule)
	limited, ok := attr(second, RateLimitedKey)
	require.True(t, ok)
	assert.True(t, limited.AsBool())

	assert.Equal(t, 1, inner.Calls(), "limited calls never reach the wrapped sampler")
	assert.Equal(t, 1, met.CounterValue("num_admitted"))
	assert.Equal(t, 1, met.CounterValue("num_limited"))

	clock.Advance(time.Second)
	third := rl.ShouldSample(params(traceIDFromUint64(3), "c"))
	assert.Equal(t, sdktrace.RecordAndSample, third.Decision)
	assert.Equal(t, 2, inner.Calls())
}

func TestRateLimitedSamplerRefill(t *testing.T) {
	rl, _, clock, _ := newLimiter(t, config.RateLimiterConfig{MaxPerSecond: 10})
	assert.Equal(t, 20, rl.Bucket().Capacity, "burst defaults to twice the rate")

	admitted := func(n int) int {
		count := 0
		for i := 0; i < n; i++ {
			if rl.ShouldSample(params(randomTraceID(t), "op")).Decision == sdktrace.RecordAndSample {
				count++
			}
		}
		return count
	}

	assert.Equal(t, 20, admitted(25))
	assert.Equal(t, 0, rl.Bucket().Tokens)

	// 150ms is worth one and a half tokens; the half carries over
	clock.Advance(150 * time.Millisecond)
	assert.Equal(t, 1, admitted(3))
	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, 1, admitted(3))

	// a long idle period fills the bucket but never overfills it
	clock.Advance(time.Hour)
	assert.Equal(t, 20, admitted(30))
}

func TestRateLimitedSamplerWindow(t *testing.T) {
	rl, _, clock, _ := newLimiter(t, config.RateLimiterConfig{
		MaxPerSecond:  2,
		BurstCapacity: 2,
		Window:        config.Duration(10 * time.Second),
	})
	for i := 0; i < 2; i++ {
		require.Equal(t, sdktrace.RecordAndSample, rl.ShouldSample(params(randomTraceID(t), "op")).Decision)
	}
	clock.Advance(4 * time.Second)
	assert.Equal(t, sdktrace.Drop, rl.ShouldSample(params(randomTraceID(t), "op")).Decision)
	clock.Advance(time.Second)
	assert.Equal(t, sdktrace.RecordAndSample, rl.ShouldSample(params(randomTraceID(t), "op")).Decision)
}

func TestRateLimitedSamplerResetBucket(t *testing.T) {
	rl, inner, clock, met := newLimiter(t, config.RateLimiterConfig{MaxPerSecond: 1, BurstCapacity: 1})
	rl.ShouldSample(params(traceIDFromUint64(1), "op"))
	require.Equal(t, 0, rl.Bucket().Tokens)

	clock.Advance(time.Minute)
	rl.ResetBucket(5)
	st := rl.Bucket()
	assert.Equal(t, 5, st.Tokens)
	assert.Equal(t, 1, st.Capacity)
	assert.Equal(t, clock.Now(), st.LastRefill)
	assert.Equal(t, 5.0, met.GaugeRecords["tokens"])

	for i := 0; i < 5; i++ {
		assert.Equal(t, sdktrace.RecordAndSample, rl.ShouldSample(params(randomTraceID(t), "op")).Decision)
	}
	assert.Equal(t, sdktrace.Drop, rl.ShouldSample(params(randomTraceID(t), "op")).Decision)
	assert.Equal(t, 6, inner.Calls())

	rl.ResetBucket(-3)
	assert.Equal(t, 0, rl.Bucket().Tokens)
}

func TestRateLimitedSamplerConcurrent(t *testing.T) {
	rl, inner, _, _ := newLimiter(t, config.RateLimiterConfig{MaxPerSecond: 100, BurstCapacity: 100})

	var admitted atomic.Int64
	var eg errgroup.Group
	for g := 0; g < 50; g++ {
		eg.Go(func() error {
			for i := 0; i < 10; i++ {
				id := traceIDFromUint64(uint64(g*10 + i))
				if rl.ShouldSample(params(id, "op")).Decision == sdktrace.RecordAndSample {
					admitted.Add(1)
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, int64(100), admitted.Load())
	assert.Equal(t, 100, inner.Calls())
}

func TestRateLimitedSamplerLifecycle(t *testing.T) {
	inner := &countingSampler{}
	rl, err := NewRateLimitedSampler(config.RateLimiterConfig{MaxPerSecond: 1}, inner, clockwork.NewFakeClock(), &logger.NullLogger{}, newTestMetrics())
	require.NoError(t, err)
	require.NoError(t, rl.Start())
	require.NoError(t, rl.Stop())
	assert.True(t, inner.started)
	assert.True(t, inner.stopped)
	assert.Same(t, inner, rl.Unwrap())
}

func TestNewRateLimitedSamplerValidation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	_, err := NewRateLimitedSampler(config.RateLimiterConfig{MaxPerSecond: 0}, &countingSampler{}, clock, &logger.NullLogger{}, newTestMetrics())
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Sampler.RateLimiter.MaxPerSecond", verr.Field)

	_, err = NewRateLimitedSampler(config.RateLimiterConfig{MaxPerSecond: 1}, nil, clock, &logger.NullLogger{}, newTestMetrics())
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Sampler.RateLimiter.Wraps", verr.Field)
}
