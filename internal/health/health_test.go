package health

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/traceguard/metrics"
)

func startHealth(t *testing.T) (*Health, *clockwork.FakeClock) {
	cl := clockwork.NewFakeClock()
	h := &Health{
		Clock: cl,
	}
	require.NoError(t, h.Start())
	// wait for the ticker to exist so that Advance drives it
	require.NoError(t, cl.BlockUntilContext(context.Background(), 1))
	t.Cleanup(func() { h.Stop() })
	return h, cl
}

// advance moves the clock forward one tick at a time, letting the ticker
// goroutine run in between.
func advance(cl *clockwork.FakeClock, ticks int) {
	for i := 0; i < ticks; i++ {
		cl.Advance(TickerTime)
		time.Sleep(1 * time.Millisecond)
	}
}

func TestHealthStartup(t *testing.T) {
	h, _ := startHealth(t)

	// with no registrations, it should be alive and not ready
	assert.True(t, h.IsAlive())
	assert.False(t, h.IsReady())
}

func TestHealthRegistrationNotReady(t *testing.T) {
	h, cl := startHealth(t)

	// register a subsystem that will never report in
	h.Register("foo", 1500*time.Millisecond)
	assert.True(t, h.IsAlive())
	assert.False(t, h.IsReady())

	// the countdown never starts, so it stays alive
	advance(cl, 10)
	assert.True(t, h.IsAlive())
	assert.False(t, h.IsReady())
}

func TestHealthRegistrationAndReady(t *testing.T) {
	h, cl := startHealth(t)
	h.Register("foo", 1500*time.Millisecond)
	h.Ready("foo", true)
	assert.True(t, h.IsAlive())
	assert.True(t, h.IsReady())

	// periodic reports keep it alive and ready
	for i := 0; i < 10; i++ {
		h.Ready("foo", true)
		advance(cl, 1)
		assert.True(t, h.IsAlive())
		assert.True(t, h.IsReady())
	}

	// silence kills it
	advance(cl, 10)
	assert.Eventually(t, func() bool { return !h.IsAlive() }, time.Second, 5*time.Millisecond)
	assert.False(t, h.IsReady())
}

func TestHealthReadyFalse(t *testing.T) {
	h, cl := startHealth(t)
	h.Register("foo", 1500*time.Millisecond)
	h.Ready("foo", true)

	advance(cl, 1)
	assert.True(t, h.IsAlive())
	assert.True(t, h.IsReady())

	h.Ready("foo", false)
	advance(cl, 1)
	assert.True(t, h.IsAlive())
	assert.False(t, h.IsReady())
	assert.Equal(t, map[string]bool{"foo": false}, h.Readiness())
}

func TestNotReadyFromOneSubsystem(t *testing.T) {
	h, _ := startHealth(t)
	h.Register("foo", 1500*time.Millisecond)
	h.Register("bar", 1500*time.Millisecond)
	h.Ready("foo", true)
	h.Ready("bar", true)
	assert.True(t, h.IsReady())

	h.Ready("bar", false)
	assert.True(t, h.IsAlive())
	assert.False(t, h.IsReady())
}

func TestUnregister(t *testing.T) {
	h, cl := startHealth(t)
	h.Register("sweeper", time.Second)
	h.Ready("sweeper", true)
	h.Unregister("sweeper")

	// reports after unregistering are ignored and it can't die
	h.Ready("sweeper", true)
	advance(cl, 4)
	assert.True(t, h.IsAlive())
	assert.False(t, h.IsReady())
}

func TestHealthMetrics(t *testing.T) {
	m := &metrics.MockMetrics{}
	m.Start()
	h := &Health{Clock: clockwork.NewFakeClock(), Metrics: m}
	require.NoError(t, h.Start())
	defer h.Stop()

	h.Register("foo", time.Second)
	h.Ready("foo", true)
	assert.Equal(t, metrics.Gauge, m.Registrations["is_ready"])
	assert.Equal(t, 1.0, m.GaugeRecords["is_ready"])
	assert.Equal(t, 1.0, m.GaugeRecords["is_alive"])
}
