package route

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
)

func TestHandlerReturnWithError(t *testing.T) {
	tests := []struct {
		name   string
		he     handlerError
		status int
		body   string
		level  config.Level
	}{
		{"detailed", ErrInvalidParam, http.StatusBadRequest, `{"error":"invalid parameter: oh no"}`, config.DebugLevel},
		{"friendly", ErrTraceNotFound, http.StatusNotFound, `{"error":"trace not found"}`, config.DebugLevel},
		{"hidden", ErrCaughtPanic, http.StatusInternalServerError, `{"error":"unexpected error!"}`, config.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &logger.MockLogger{}
			met := &metrics.MockMetrics{}
			met.Start()
			router := &Router{Logger: l, Metrics: met}

			w := httptest.NewRecorder()
			router.handlerReturnWithError(w, tt.he, errors.New("oh no"))

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
			assert.Equal(t, 1, met.CounterValue("admin_errors"))

			require.Len(t, l.Events, 1)
			assert.Equal(t, "oh no", l.Events[0].Fields["error.message"])
			assert.Len(t, l.Messages(tt.level), 1)
		})
	}
}
