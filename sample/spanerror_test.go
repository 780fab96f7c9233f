package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestIsErrorSpan(t *testing.T) {
	tests := []struct {
		name  string
		attrs []attribute.KeyValue
		want  bool
	}{
		{"no attributes", nil, false},
		{"error flag", []attribute.KeyValue{attribute.Bool("error", true)}, true},
		{"error flag false", []attribute.KeyValue{attribute.Bool("error", false)}, false},
		{"error string", []attribute.KeyValue{attribute.String("error", "TRUE")}, true},
		{"error message is not a flag", []attribute.KeyValue{attribute.String("error", "timeout")}, false},
		{"legacy http status", []attribute.KeyValue{attribute.Int("http.status_code", 404)}, true},
		{"http status ok", []attribute.KeyValue{semconv.HTTPResponseStatusCodeKey.Int(204)}, false},
		{"http status 400", []attribute.KeyValue{semconv.HTTPResponseStatusCodeKey.Int(400)}, true},
		{"http status string", []attribute.KeyValue{attribute.String("http.status_code", " 502 ")}, true},
		{"http status float", []attribute.KeyValue{attribute.Float64("http.status_code", 500)}, true},
		{"http status garbage", []attribute.KeyValue{attribute.String("http.status_code", "oops")}, false},
		{"http status wrong type", []attribute.KeyValue{attribute.Bool("http.status_code", true)}, false},
		{"status code error", []attribute.KeyValue{attribute.String("otel.status_code", "ERROR")}, true},
		{"status code ok", []attribute.KeyValue{attribute.String("status.code", "ok")}, false},
		{"status int", []attribute.KeyValue{attribute.Int("status", 2)}, false},
		{"unrelated key", []attribute.KeyValue{attribute.String("message", "error")}, false},
		{"error among others", []attribute.KeyValue{
			attribute.String("peer.service", "db"),
			attribute.String("status", "error"),
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isErrorSpan(tt.attrs))
		})
	}
}
