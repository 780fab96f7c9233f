package sample

import (
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// isErrorSpan reports whether the attributes mark the span as failed: an
// error flag, an HTTP status of 400 or more, or an error status code.
// Attributes of unexpected types never count as errors.
func isErrorSpan(attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		switch kv.Key {
		case "error":
			switch kv.Value.Type() {
			case attribute.BOOL:
				if kv.Value.AsBool() {
					return true
				}
			case attribute.STRING:
				if strings.EqualFold(strings.TrimSpace(kv.Value.AsString()), "true") {
					return true
				}
			}
		case "http.status_code", semconv.HTTPResponseStatusCodeKey:
			if code, ok := statusCode(kv.Value); ok && code >= 400 {
				return true
			}
		case "status.code", "otel.status_code", "status":
			if kv.Value.Type() == attribute.STRING && strings.EqualFold(strings.TrimSpace(kv.Value.AsString()), "error") {
				return true
			}
		}
	}
	return false
}

func statusCode(v attribute.Value) (int64, bool) {
	switch v.Type() {
	case attribute.INT64:
		return v.AsInt64(), true
	case attribute.FLOAT64:
		return int64(v.AsFloat64()), true
	case attribute.STRING:
		n, err := strconv.ParseInt(strings.TrimSpace(v.AsString()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
