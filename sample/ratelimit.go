package sample

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
)

// RateLimitedSampler admits at most MaxPerSecond calls per window into the
// wrapped sampler, with bursts up to the bucket capacity. Calls that find the
// bucket empty are dropped without consulting the wrapped sampler.
type RateLimitedSampler struct {
	Logger  logger.Logger
	Metrics metrics.Metrics

	wrapped Sampler
	clock   clockwork.Clock

	maxPerWindow int64
	burst        int
	window       time.Duration

	// mut guards the bucket; every check is a single read-modify-write
	mut        sync.Mutex
	tokens     int
	lastRefill time.Time
}

var (
	_ Sampler   = (*RateLimitedSampler)(nil)
	_ Unwrapper = (*RateLimitedSampler)(nil)
)

// BucketState is a snapshot of the token bucket.
type BucketState struct {
	Tokens     int       `json:"tokens"`
	Capacity   int       `json:"capacity"`
	LastRefill time.Time `json:"last_refill"`
}

// NewRateLimitedSampler wraps sampler. The bucket starts full.
func NewRateLimitedSampler(cfg config.RateLimiterConfig, wrapped Sampler, clock clockwork.Clock, lgr logger.Logger, met metrics.Metrics) (*RateLimitedSampler, error) {
	if cfg.MaxPerSecond <= 0 {
		return nil, &config.ValidationError{Field: "Sampler.RateLimiter.MaxPerSecond", Message: fmt.Sprintf("must be positive, got %d", cfg.MaxPerSecond)}
	}
	if wrapped == nil {
		return nil, &config.ValidationError{Field: "Sampler.RateLimiter.Wraps", Message: "no sampler to wrap"}
	}
	burst := cfg.GetBurstCapacity()
	return &RateLimitedSampler{
		Logger:       lgr,
		Metrics:      met,
		wrapped:      wrapped,
		clock:        clock,
		maxPerWindow: int64(cfg.MaxPerSecond),
		burst:        burst,
		window:       cfg.GetWindow(),
		tokens:       burst,
		lastRefill:   clock.Now(),
	}, nil
}

// Start also starts the wrapped sampler.
func (r *RateLimitedSampler) Start() error {
	r.Logger.Debug().Logf("Starting RateLimitedSampler")
	defer func() { r.Logger.Debug().Logf("Finished starting RateLimitedSampler") }()

	r.Metrics.Register("num_admitted", metrics.Counter)
	r.Metrics.Register("num_limited", metrics.Counter)
	r.Metrics.Register("tokens", metrics.Gauge)
	return r.wrapped.Start()
}

func (r *RateLimitedSampler) Stop() error {
	return r.wrapped.Stop()
}

func (r *RateLimitedSampler) Unwrap() Sampler {
	return r.wrapped
}

func (r *RateLimitedSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if !r.take() {
		r.Metrics.Increment("num_limited")
		return samplingResult(p, false, decisionAttributes(AutoReject, MechanismRule, noRate, RateLimitedKey.Bool(true)))
	}
	r.Metrics.Increment("num_admitted")
	return r.wrapped.ShouldSample(p)
}

// take refills the bucket for the time elapsed since the last refill and
// consumes one token if there is one.
func (r *RateLimitedSampler) take() bool {
	r.mut.Lock()
	defer r.mut.Unlock()

	r.refill(r.clock.Now())
	if r.tokens < 1 {
		return false
	}
	r.tokens--
	r.Metrics.Gauge("tokens", r.tokens)
	return true
}

// call with mut held
func (r *RateLimitedSampler) refill(now time.Time) {
	if r.tokens >= r.burst {
		// a full bucket accrues nothing; time starts counting when it drains
		r.lastRefill = now
		return
	}
	elapsed := now.Sub(r.lastRefill)
	if elapsed <= 0 {
		return
	}
	// whole windows first so that long idle periods cannot overflow
	windows := int64(elapsed / r.window)
	rem := int64(elapsed % r.window)
	add := windows*r.maxPerWindow + rem*r.maxPerWindow/int64(r.window)
	if add <= 0 {
		return
	}
	room := int64(r.burst - r.tokens)
	if add >= room {
		r.tokens = r.burst
		r.lastRefill = now
		return
	}
	r.tokens += int(add)
	// advance only by the time the added tokens represent, keeping the
	// fractional remainder for the next call
	r.lastRefill = r.lastRefill.Add(time.Duration(add * int64(r.window) / r.maxPerWindow))
}

// Bucket returns the current state of the token bucket without refilling it.
func (r *RateLimitedSampler) Bucket() BucketState {
	r.mut.Lock()
	defer r.mut.Unlock()
	return BucketState{
		Tokens:     r.tokens,
		Capacity:   r.burst,
		LastRefill: r.lastRefill,
	}
}

// ResetBucket sets the token count to capacity, which may exceed the burst
// capacity, and restarts the refill clock.
func (r *RateLimitedSampler) ResetBucket(capacity int) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.tokens = max(capacity, 0)
	r.lastRefill = r.clock.Now()
	r.Metrics.Gauge("tokens", r.tokens)
	r.Logger.Info().WithField("tokens", r.tokens).Logf("rate limiter bucket reset")
}

func (r *RateLimitedSampler) Description() string {
	return fmt.Sprintf("RateLimitedSampler{max=%d/%s,burst=%d}(%s)", r.maxPerWindow, r.window, r.burst, r.wrapped.Description())
}
