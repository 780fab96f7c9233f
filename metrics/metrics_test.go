package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertNumeric(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want float64
	}{
		{"int", int(17), 17},
		{"uint", uint(17), 17},
		{"int64", int64(17), 17},
		{"uint64", uint64(17), 17},
		{"int32", int32(17), 17},
		{"uint32", uint32(17), 17},
		{"int16", int16(17), 17},
		{"uint16", uint16(17), 17},
		{"int8", int8(17), 17},
		{"uint8", uint8(17), 17},
		{"float64", float64(17), 17},
		{"float32", float32(17), 17},
		{"bool", true, 1},
		{"bool", false, 0},
		{"string", "17", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertNumeric(tt.val); got != tt.want {
				t.Errorf("ConvertNumeric() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrefixMetricName(t *testing.T) {
	assert.Equal(t, "tail_buffered", PrefixMetricName("tail", "buffered"))
	assert.Equal(t, "buffered", PrefixMetricName("", "buffered"))
}

func TestMetricsPrefixer(t *testing.T) {
	m := &MockMetrics{}
	m.Start()
	p := NewMetricsPrefixer("tail")
	p.Metrics = m

	p.Register("kept", Counter)
	p.Increment("kept")
	p.Gauge("buffered", 4)

	assert.Equal(t, Counter, m.Registrations["tail_kept"])
	assert.Equal(t, 1, m.CounterIncrements["tail_kept"])
	v, ok := p.Get("buffered")
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)

	sub := p.Sub("policy")
	sub.Increment("kept")
	assert.Equal(t, "tail_policy", sub.Prefix())
	assert.Equal(t, 1, m.CounterIncrements["tail_policy_kept"])

	bare := NewMetricsPrefixer("")
	bare.Metrics = m
	bare.Increment("kept")
	assert.Equal(t, 1, m.CounterIncrements["kept"])
}
