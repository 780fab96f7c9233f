package sample

import (
	"context"
	"math"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/honeycombio/traceguard/config"
)

// Sampling priorities attached to every decision.
const (
	UserReject = -1
	AutoReject = 0
	AutoKeep   = 1
	UserKeep   = 2
)

// Sampling mechanisms identify which policy made a decision.
const (
	MechanismDefault = 0
	MechanismAgent   = 1
	MechanismRule    = 3
	MechanismManual  = 4
)

// Attribute keys of the decision attributes. Their names and value types are
// read by the span encoder and must not change.
const (
	SamplingPriorityKey = attribute.Key("_sampling_priority_v1")
	DecisionMakerKey    = attribute.Key("_dd.p.dm")
	RuleRateKey         = attribute.Key("_dd.rule_psr")

	TailBufferedKey = attribute.Key("_dd.tail.buffered")
	TailFallbackKey = attribute.Key("_dd.tail.fallback")
	RateLimitedKey  = attribute.Key("_dd.rate_limited")
)

// ManualPriorityKey is the span attribute a caller can set to force a
// priority without going through the context.
const ManualPriorityKey = attribute.Key("sampling.priority")

type priorityContextKey struct{}

// SetSamplingPriority returns a copy of ctx carrying a manual sampling
// priority. Spans started from the returned context are sampled according
// to it by samplers that honor manual priority.
func SetSamplingPriority(ctx context.Context, priority int) (context.Context, error) {
	if err := config.ValidatePriority("sampling.priority", priority); err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, priorityContextKey{}, priority), nil
}

// GetSamplingPriority returns the manual sampling priority carried by ctx.
func GetSamplingPriority(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	p, ok := ctx.Value(priorityContextKey{}).(int)
	return p, ok
}

// manualPriority finds an explicit priority in the context or the span
// attributes. Values that are not valid priorities are ignored.
func manualPriority(p sdktrace.SamplingParameters) (int, bool) {
	if prio, ok := GetSamplingPriority(p.ParentContext); ok {
		return prio, true
	}
	for _, kv := range p.Attributes {
		if kv.Key != ManualPriorityKey && kv.Key != SamplingPriorityKey {
			continue
		}
		if prio, ok := priorityFromValue(kv.Value); ok {
			return prio, true
		}
	}
	return 0, false
}

func priorityFromValue(v attribute.Value) (int, bool) {
	var prio int
	switch v.Type() {
	case attribute.INT64:
		n := v.AsInt64()
		if n < -1 || n > 2 {
			return 0, false
		}
		prio = int(n)
	case attribute.FLOAT64:
		f := v.AsFloat64()
		if f != math.Trunc(f) || f < -1 || f > 2 {
			return 0, false
		}
		prio = int(f)
	case attribute.STRING:
		n, err := strconv.Atoi(strings.TrimSpace(v.AsString()))
		if err != nil {
			return 0, false
		}
		prio = n
	default:
		return 0, false
	}
	return prio, config.IsValidPriority(prio)
}

// spanService returns the service.name attribute, or fallback.
func spanService(attrs []attribute.KeyValue, fallback string) string {
	for _, kv := range attrs {
		if kv.Key == semconv.ServiceNameKey && kv.Value.Type() == attribute.STRING {
			if s := kv.Value.AsString(); s != "" {
				return s
			}
		}
	}
	return fallback
}

// decisionAttributes builds the attributes every decision carries. A
// negative rate means no rate applies.
func decisionAttributes(priority, mechanism int, rate float64, extra ...attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3+len(extra))
	attrs = append(attrs,
		SamplingPriorityKey.Int64(int64(priority)),
		DecisionMakerKey.Int64(int64(mechanism)),
	)
	if rate >= 0 {
		attrs = append(attrs, RuleRateKey.Float64(rate))
	}
	return append(attrs, extra...)
}

// noRate is passed to decisionAttributes when no rate was applied.
const noRate = -1.0

func samplingResult(p sdktrace.SamplingParameters, keep bool, attrs []attribute.KeyValue) sdktrace.SamplingResult {
	decision := sdktrace.Drop
	if keep {
		decision = sdktrace.RecordAndSample
	}
	res := sdktrace.SamplingResult{
		Decision:   decision,
		Attributes: attrs,
	}
	if p.ParentContext != nil {
		res.Tracestate = trace.SpanContextFromContext(p.ParentContext).TraceState()
	}
	return res
}

func keepPriority(keep bool) int {
	if keep {
		return AutoKeep
	}
	return AutoReject
}
