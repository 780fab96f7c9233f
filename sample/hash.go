package sample

import (
	"encoding/binary"
	"math"

	"go.opentelemetry.io/otel/trace"
)

// knuthFactor is a large odd constant used to scramble the trace id before
// comparing it against the rate threshold.
const knuthFactor = uint64(1111111111111111111)

// Sampled reports whether the trace with the given id is kept at rate. It
// depends only on its arguments, so every service that sees the trace makes
// the same choice, and a trace kept at some rate is kept at every higher
// rate.
func Sampled(traceID trace.TraceID, rate float64) bool {
	if rate >= 1 {
		return true
	}
	// also catches NaN
	if !(rate > 0) {
		return false
	}
	return binary.BigEndian.Uint64(traceID[8:])*knuthFactor < uint64(rate*math.MaxUint64)
}
