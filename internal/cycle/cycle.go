package cycle

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cycle is a controllable loop that calls a function at a fixed interval
// until it is stopped. Tests drive it deterministically with RunOnce or by
// advancing a fake clock.
type Cycle struct {
	clock    clockwork.Clock
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once

	// runOnce is only used by tests
	runOnce chan message
}

// message signals back to the caller that one run has finished.
type message struct {
	done chan struct{}
}

func NewCycle(clock clockwork.Clock, interval time.Duration) *Cycle {
	return &Cycle{
		clock:    clock,
		interval: interval,
		done:     make(chan struct{}),
		runOnce:  make(chan message),
	}
}

// Run calls fn every interval until Stop is called or ctx is canceled. It
// returns the first error fn returns.
func (c *Cycle) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case wait := <-c.runOnce:
			err := fn(ctx)
			close(wait.done)
			if err != nil {
				return err
			}
		case <-ticker.Chan():
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}

// RunOnce runs the function once and returns after it has finished. It
// returns immediately if the cycle has been stopped.
func (c *Cycle) RunOnce() {
	done := make(chan struct{})
	select {
	case c.runOnce <- message{done: done}:
	case <-c.done:
		return
	}

	select {
	case <-done:
	case <-c.done:
	}
}

// Stop ends Run. It is safe to call more than once.
func (c *Cycle) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Done is closed once Stop has been called.
func (c *Cycle) Done() <-chan struct{} {
	return c.done
}
