package metrics

import "sync"

// StoreMetrics keeps the current value of every counter, gauge, updown
// counter and stored constant so that it can be retrieved with Get().
// Histograms are not tracked. Counters are never reset, so Get returns the
// total since startup.
type StoreMetrics struct {
	values map[string]float64
	lock   sync.RWMutex
}

var _ Metrics = (*StoreMetrics)(nil)

func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{values: make(map[string]float64)}
}

func (s *StoreMetrics) Register(name string, metricType string) {
	if metricType == Histogram {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.values[name]; !ok {
		s.values[name] = 0
	}
}

func (s *StoreMetrics) Increment(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[name]++
}

func (s *StoreMetrics) Count(name string, val any) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[name] += ConvertNumeric(val)
}

func (s *StoreMetrics) Gauge(name string, val any) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[name] = ConvertNumeric(val)
}

func (s *StoreMetrics) Up(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[name]++
}

func (s *StoreMetrics) Down(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[name]--
}

func (s *StoreMetrics) Store(name string, val float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[name] = val
}

func (s *StoreMetrics) Get(name string) (float64, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	val, ok := s.values[name]
	return val, ok
}

func (s *StoreMetrics) Histogram(name string, obs any) {}
