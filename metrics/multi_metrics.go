package metrics

// MultiMetrics is a metrics provider that sends metrics to zero or more other
// metrics providers.
//
// It intercepts Store and Get so that values can be read back even when no
// exporting provider is configured.
type MultiMetrics struct {
	// The exporters are injected so that they are started before anything
	// that registers metrics through the MultiMetrics. Each is a NullMetrics
	// when disabled.
	PromMetrics Metrics `inject:"promMetrics"`
	OTelMetrics Metrics `inject:"otelMetrics"`

	children []Metrics
	store    *StoreMetrics
}

var _ Metrics = (*MultiMetrics)(nil)

func NewMultiMetrics() *MultiMetrics {
	return &MultiMetrics{store: NewStoreMetrics()}
}

// AddChild adds a provider; it must be called before the first metric is
// registered. The injected exporters are added by Start.
func (m *MultiMetrics) AddChild(met Metrics) {
	m.children = append(m.children, met)
}

func (m *MultiMetrics) Children() []Metrics {
	return m.children
}

func (m *MultiMetrics) Start() error {
	for _, exp := range []Metrics{m.PromMetrics, m.OTelMetrics} {
		if exp != nil {
			m.AddChild(exp)
		}
	}
	return nil
}

func (m *MultiMetrics) Register(name string, metricType string) {
	for _, ch := range m.children {
		ch.Register(name, metricType)
	}
	m.store.Register(name, metricType)
}

func (m *MultiMetrics) Increment(name string) { // for counters
	for _, ch := range m.children {
		ch.Increment(name)
	}
	m.store.Increment(name)
}

func (m *MultiMetrics) Gauge(name string, val any) { // for gauges
	for _, ch := range m.children {
		ch.Gauge(name, val)
	}
	m.store.Gauge(name, val)
}

func (m *MultiMetrics) Count(name string, n any) { // for counters
	for _, ch := range m.children {
		ch.Count(name, n)
	}
	m.store.Count(name, n)
}

func (m *MultiMetrics) Histogram(name string, obs any) { // for histogram
	for _, ch := range m.children {
		ch.Histogram(name, obs)
	}
}

func (m *MultiMetrics) Up(name string) { // for updown
	for _, ch := range m.children {
		ch.Up(name)
	}
	m.store.Up(name)
}

func (m *MultiMetrics) Down(name string) { // for updown
	for _, ch := range m.children {
		ch.Down(name)
	}
	m.store.Down(name)
}

func (m *MultiMetrics) Get(name string) (float64, bool) { // for reading back a counter or a gauge
	return m.store.Get(name)
}

func (m *MultiMetrics) Store(name string, val float64) { // for storing a rarely-changing value not sent as a metric
	m.store.Store(name, val)
}
