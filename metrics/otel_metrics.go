package metrics

import (
	"context"
	"maps"
	"net/url"
	"os"
	"runtime"
	rtmetrics "runtime/metrics"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

var _ Metrics = (*OTelMetrics)(nil)

// OTelMetrics pushes metrics over OTLP/HTTP. Counters and histograms are
// exported as deltas so each report holds what happened since the last one;
// gauges and updowns are cumulative.
//
// Instruments are created on first use, so names that were never registered
// are still exported.
type OTelMetrics struct {
	Config  config.Config `inject:""`
	Logger  logger.Logger `inject:""`
	Version string        `inject:"version"`

	meter        metric.Meter
	shutdownFunc func(ctx context.Context) error
	// reader replaces the periodic exporter when set
	reader sdkmetric.Reader

	counters         sync.Map // map[string]metric.Int64Counter
	gauges           sync.Map // map[string]metric.Float64Gauge
	histograms       sync.Map // map[string]metric.Float64Histogram
	updowns          sync.Map // map[string]metric.Int64UpDownCounter
	observableGauges sync.Map // map[string]metric.Float64ObservableGauge
}

func exportTemporality(ik sdkmetric.InstrumentKind) metricdata.Temporality {
	switch ik {
	case sdkmetric.InstrumentKindCounter, sdkmetric.InstrumentKindHistogram:
		return metricdata.DeltaTemporality
	default:
		return metricdata.CumulativeTemporality
	}
}

func (o *OTelMetrics) Start() error {
	cfg := o.Config.GetOTelMetricsConfig()
	ctx := context.Background()

	// the exporter wants a bare host:port, not a URL
	host, err := url.Parse(cfg.APIHost)
	if err != nil {
		o.Logger.Error().WithString("apihost", cfg.APIHost).Logf("failed to parse metrics APIHost")
		return err
	}

	compression := otlpmetrichttp.GzipCompression
	if cfg.Compression == "none" {
		compression = otlpmetrichttp.NoCompression
	}
	options := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(host.Host),
		otlpmetrichttp.WithCompression(compression),
		otlpmetrichttp.WithTemporalitySelector(exportTemporality),
	}
	hdrs := maps.Clone(cfg.Headers)
	if hdrs == nil {
		hdrs = make(map[string]string)
	}
	if cfg.APIKey != "" {
		hdrs["x-honeycomb-team"] = cfg.APIKey
	}
	if cfg.Dataset != "" {
		hdrs["x-honeycomb-dataset"] = cfg.Dataset
	}
	if len(hdrs) > 0 {
		options = append(options, otlpmetrichttp.WithHeaders(hdrs))
	}
	if host.Scheme == "http" {
		options = append(options, otlpmetrichttp.WithInsecure())
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown: " + err.Error()
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(resource.Default().Attributes()...),
		resource.WithAttributes(
			semconv.ServiceName("traceguard"),
			semconv.ServiceVersion(o.Version),
			semconv.HostName(hostname),
			attribute.String("hostname", hostname),
		),
	)
	if err != nil {
		return err
	}

	reader := o.reader
	if reader == nil {
		exporter, err := otlpmetrichttp.New(ctx, options...)
		if err != nil {
			return err
		}
		reader = sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(time.Duration(cfg.ReportingInterval)),
		)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	o.meter = provider.Meter("traceguard")
	o.shutdownFunc = provider.Shutdown

	startTime := time.Now()
	process := map[string]metric.Float64Callback{
		"num_goroutines": func(_ context.Context, result metric.Float64Observer) error {
			result.Observe(float64(runtime.NumGoroutine()))
			return nil
		},
		"memory_inuse": func(_ context.Context, result metric.Float64Observer) error {
			sample := []rtmetrics.Sample{{Name: heapObjectsMetric}}
			rtmetrics.Read(sample)
			result.Observe(float64(sample[0].Value.Uint64()))
			return nil
		},
		"process_uptime_seconds": func(_ context.Context, result metric.Float64Observer) error {
			result.Observe(time.Since(startTime).Seconds())
			return nil
		},
	}
	for name, cb := range process {
		g, err := o.meter.Float64ObservableGauge(name, metric.WithFloat64Callback(cb))
		if err != nil {
			return err
		}
		o.observableGauges.Store(name, g)
	}

	o.Logger.Debug().WithField("endpoint", cfg.APIHost).Logf("started OTel metrics exporter")
	return nil
}

func (o *OTelMetrics) Stop() error {
	if o.shutdownFunc == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return o.shutdownFunc(ctx)
}

// Register creates the instrument for name. Counters and updowns report zero
// until they are first updated.
func (o *OTelMetrics) Register(name string, metricType string) {
	var err error
	switch metricType {
	case Counter:
		_, err = o.counter(name)
	case Gauge:
		_, err = o.gauge(name)
	case Histogram:
		_, err = o.histogram(name)
	case UpDown:
		_, err = o.updown(name)
	default:
		o.Logger.Warn().WithString("name", name).Logf("unknown metric type %q", metricType)
		return
	}
	if err != nil {
		o.Logger.Error().WithString("name", name).WithString("type", metricType).Logf("failed to create instrument: %s", err)
	}
}

func (o *OTelMetrics) Increment(name string) {
	if ctr, err := o.counter(name); err == nil {
		ctr.Add(context.Background(), 1)
	}
}

func (o *OTelMetrics) Count(name string, n any) {
	if ctr, err := o.counter(name); err == nil {
		ctr.Add(context.Background(), int64(ConvertNumeric(n)))
	}
}

func (o *OTelMetrics) Gauge(name string, val any) {
	if g, err := o.gauge(name); err == nil {
		g.Record(context.Background(), ConvertNumeric(val))
	}
}

func (o *OTelMetrics) Histogram(name string, obs any) {
	if h, err := o.histogram(name); err == nil {
		h.Record(context.Background(), ConvertNumeric(obs))
	}
}

func (o *OTelMetrics) Up(name string) {
	if ud, err := o.updown(name); err == nil {
		ud.Add(context.Background(), 1)
	}
}

func (o *OTelMetrics) Down(name string) {
	if ud, err := o.updown(name); err == nil {
		ud.Add(context.Background(), -1)
	}
}

// Get and Store are served by MultiMetrics.
func (o *OTelMetrics) Get(name string) (float64, bool) { return 0, false }
func (o *OTelMetrics) Store(name string, val float64)  {}

// The instrument getters create on a miss and keep whichever instrument was
// stored first when two goroutines race.

func (o *OTelMetrics) counter(name string) (metric.Int64Counter, error) {
	if v, ok := o.counters.Load(name); ok {
		return v.(metric.Int64Counter), nil
	}
	ctr, err := o.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	ctr.Add(context.Background(), 0)
	actual, _ := o.counters.LoadOrStore(name, ctr)
	return actual.(metric.Int64Counter), nil
}

func (o *OTelMetrics) gauge(name string) (metric.Float64Gauge, error) {
	if v, ok := o.gauges.Load(name); ok {
		return v.(metric.Float64Gauge), nil
	}
	g, err := o.meter.Float64Gauge(name)
	if err != nil {
		return nil, err
	}
	actual, _ := o.gauges.LoadOrStore(name, g)
	return actual.(metric.Float64Gauge), nil
}

func (o *OTelMetrics) histogram(name string) (metric.Float64Histogram, error) {
	if v, ok := o.histograms.Load(name); ok {
		return v.(metric.Float64Histogram), nil
	}
	h, err := o.meter.Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	actual, _ := o.histograms.LoadOrStore(name, h)
	return actual.(metric.Float64Histogram), nil
}

func (o *OTelMetrics) updown(name string) (metric.Int64UpDownCounter, error) {
	if v, ok := o.updowns.Load(name); ok {
		return v.(metric.Int64UpDownCounter), nil
	}
	ud, err := o.meter.Int64UpDownCounter(name)
	if err != nil {
		return nil, err
	}
	ud.Add(context.Background(), 0)
	actual, _ := o.updowns.LoadOrStore(name, ud)
	return actual.(metric.Int64UpDownCounter), nil
}
