package health

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/honeycombio/traceguard/internal/cycle"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
)

// Subsystems register with Health during startup and then call Ready
// periodically. A subsystem that stops reporting for longer than its timeout
// marks the whole process as not alive. A subsystem can report that it is
// alive but not ready, which is what happens during shutdown. Registration
// does not start the countdown; it starts with the first call to Ready.

// Recorder is the interface used by objects that want to record their own
// health status and make it available to the system.
type Recorder interface {
	Register(subsystem string, timeout time.Duration)
	Unregister(subsystem string)
	Ready(subsystem string, ready bool)
}

// Reporter is the interface that is used to read back the health status of the system.
type Reporter interface {
	IsAlive() bool
	IsReady() bool
}

// TickerTime is the interval at which the countdown of every registered
// subsystem is decremented. It should be shorter than any reporting timeout.
var TickerTime = 500 * time.Millisecond

// The Health object is the main object that subsystems will interact with.
type Health struct {
	Clock   clockwork.Clock `inject:""`
	Metrics metrics.Metrics `inject:"metrics"`
	Logger  logger.Logger   `inject:""`

	timeouts map[string]time.Duration
	timeLeft map[string]time.Duration
	readies  map[string]bool
	alives   map[string]bool
	mut      sync.RWMutex
	cycle    *cycle.Cycle
	stopped  chan struct{}
}

var (
	_ Recorder = (*Health)(nil)
	_ Reporter = (*Health)(nil)
)

func (h *Health) Start() error {
	// if we don't have a logger or metrics object, we'll use the null ones (makes testing easier)
	if h.Logger == nil {
		h.Logger = &logger.NullLogger{}
	}
	if h.Metrics == nil {
		h.Metrics = &metrics.NullMetrics{}
	}
	if h.Clock == nil {
		h.Clock = clockwork.NewRealClock()
	}
	h.Metrics.Register("is_ready", metrics.Gauge)
	h.Metrics.Register("is_alive", metrics.Gauge)

	h.timeouts = make(map[string]time.Duration)
	h.timeLeft = make(map[string]time.Duration)
	h.readies = make(map[string]bool)
	h.alives = make(map[string]bool)
	h.cycle = cycle.NewCycle(h.Clock, TickerTime)
	h.stopped = make(chan struct{})
	go func() {
		defer close(h.stopped)
		h.cycle.Run(context.Background(), h.tick)
	}()
	return nil
}

func (h *Health) Stop() error {
	h.cycle.Stop()
	<-h.stopped
	return nil
}

func (h *Health) tick(context.Context) error {
	h.mut.Lock()
	defer h.mut.Unlock()
	for subsystem, timeLeft := range h.timeLeft {
		// zero means dead and negative means not yet reported
		if timeLeft > 0 {
			h.timeLeft[subsystem] = max(timeLeft-TickerTime, 0)
		}
	}
	return nil
}

// Register a subsystem with the health system. The timeout is the maximum
// expected interval between subsystem reports.
func (h *Health) Register(subsystem string, timeout time.Duration) {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.timeouts[subsystem] = timeout
	h.readies[subsystem] = false
	h.timeLeft[subsystem] = -1
	fields := map[string]any{
		"source":  subsystem,
		"timeout": timeout,
	}
	h.Logger.Debug().WithFields(fields).Logf("Registered Health ticker")
	if timeout < TickerTime {
		h.Logger.Error().WithFields(fields).Logf("Registering a timeout less than the ticker time")
	}
}

// Unregister marks the subsystem as not ready and stops tracking whether it
// is alive. Reports from it are ignored afterwards.
func (h *Health) Unregister(subsystem string) {
	h.mut.Lock()
	defer h.mut.Unlock()
	delete(h.timeouts, subsystem)
	delete(h.timeLeft, subsystem)
	delete(h.alives, subsystem)

	// an unregistered subsystem can never be ready
	h.readies[subsystem] = false
}

// Ready is called by subsystems with a flag to indicate their readiness to
// receive traffic. Even unready subsystems are alive as long as they report.
func (h *Health) Ready(subsystem string, ready bool) {
	h.mut.Lock()
	defer h.mut.Unlock()
	if _, ok := h.timeouts[subsystem]; !ok {
		// reports after Unregister are expected; reports from strangers are not
		if _, ok := h.readies[subsystem]; !ok {
			h.Logger.Error().WithString("subsystem", subsystem).Logf("Health.Ready called for unregistered subsystem")
		}
		return
	}
	if h.readies[subsystem] != ready {
		h.Logger.Info().WithFields(map[string]any{
			"subsystem": subsystem,
			"ready":     ready,
		}).Logf("Health.Ready reporting subsystem changing state")
	}
	h.readies[subsystem] = ready
	h.timeLeft[subsystem] = h.timeouts[subsystem]
	if !h.alives[subsystem] {
		h.alives[subsystem] = true
		h.Logger.Info().WithString("subsystem", subsystem).Logf("Health.Ready reporting subsystem alive")
	}
	h.Metrics.Gauge("is_ready", h.checkReady())
	h.Metrics.Gauge("is_alive", h.checkAlive())
}

// IsAlive returns true if all registered subsystems are alive
func (h *Health) IsAlive() bool {
	h.mut.Lock()
	defer h.mut.Unlock()
	return h.checkAlive()
}

// only call with a write lock held
func (h *Health) checkAlive() bool {
	for subsystem, left := range h.timeLeft {
		if left == 0 {
			if h.alives[subsystem] {
				h.Logger.Error().WithString("subsystem", subsystem).Logf("IsAlive: subsystem dead due to timeout")
				h.alives[subsystem] = false
			}
			return false
		}
	}
	return true
}

// IsReady returns true if all registered subsystems are ready
func (h *Health) IsReady() bool {
	h.mut.RLock()
	defer h.mut.RUnlock()
	return h.checkReady()
}

// only call with the lock held
func (h *Health) checkReady() bool {
	if len(h.readies) == 0 {
		return false
	}
	for _, counter := range h.timeLeft {
		if counter <= 0 {
			return false
		}
	}
	for _, r := range h.readies {
		if !r {
			return false
		}
	}
	return true
}

// Readiness returns a copy of the last readiness reported by each subsystem.
func (h *Health) Readiness() map[string]bool {
	h.mut.RLock()
	defer h.mut.RUnlock()
	return maps.Clone(h.readies)
}
