package health

import "sync/atomic"

// MockHealthReporter answers alive and ready checks with values set by the
// test. Both start false.
type MockHealthReporter struct {
	alive atomic.Bool
	ready atomic.Bool
}

var _ Reporter = (*MockHealthReporter)(nil)

func (m *MockHealthReporter) SetAlive(alive bool) { m.alive.Store(alive) }
func (m *MockHealthReporter) SetReady(ready bool) { m.ready.Store(ready) }
func (m *MockHealthReporter) IsAlive() bool       { return m.alive.Load() }
func (m *MockHealthReporter) IsReady() bool       { return m.ready.Load() }
