package metrics

// MetricsPrefixer names every metric of one component with the component's
// prefix and forwards it to the shared Metrics. Values can be read back by
// the unprefixed name.
type MetricsPrefixer struct {
	Metrics Metrics `inject:"metrics"`
	prefix  string
}

var _ Metrics = (*MetricsPrefixer)(nil)

func NewMetricsPrefixer(prefix string) *MetricsPrefixer {
	return &MetricsPrefixer{prefix: prefix}
}

// Sub returns a prefixer for a part of this component, sharing the same
// Metrics.
func (p *MetricsPrefixer) Sub(prefix string) *MetricsPrefixer {
	return &MetricsPrefixer{Metrics: p.Metrics, prefix: PrefixMetricName(p.prefix, prefix)}
}

func (p *MetricsPrefixer) Prefix() string {
	return p.prefix
}

func (p *MetricsPrefixer) name(name string) string {
	return PrefixMetricName(p.prefix, name)
}

func (p *MetricsPrefixer) Start() error {
	return nil
}

func (p *MetricsPrefixer) Register(name string, metricType string) {
	p.Metrics.Register(p.name(name), metricType)
}

func (p *MetricsPrefixer) Increment(name string) {
	p.Metrics.Increment(p.name(name))
}

func (p *MetricsPrefixer) Gauge(name string, val any) {
	p.Metrics.Gauge(p.name(name), val)
}

func (p *MetricsPrefixer) Count(name string, val any) {
	p.Metrics.Count(p.name(name), val)
}

func (p *MetricsPrefixer) Histogram(name string, obs any) {
	p.Metrics.Histogram(p.name(name), obs)
}

func (p *MetricsPrefixer) Up(name string) {
	p.Metrics.Up(p.name(name))
}

func (p *MetricsPrefixer) Down(name string) {
	p.Metrics.Down(p.name(name))
}

func (p *MetricsPrefixer) Get(name string) (float64, bool) {
	return p.Metrics.Get(p.name(name))
}

func (p *MetricsPrefixer) Store(name string, val float64) {
	p.Metrics.Store(p.name(name), val)
}
