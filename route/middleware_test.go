package route

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
	"github.com/honeycombio/traceguard/metrics"
)

type dummyHandler struct{}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.Context().Value(requestIDContextKey{}).(string); !ok {
		w.WriteHeader(http.StatusTeapot)
	}
	w.Write([]byte("good"))
}

func newMiddlewareRouter() (*Router, *logger.MockLogger, *metrics.MockMetrics) {
	l := &logger.MockLogger{}
	met := &metrics.MockMetrics{}
	met.Start()
	return &Router{Logger: l, Metrics: met}, l, met
}

func TestPanicCatcher(t *testing.T) {
	router, _, _ := newMiddlewareRouter()
	h := router.panicCatcher(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("panic? never!")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"unexpected error!"}`, rr.Body.String())
}

func TestRequestLogger(t *testing.T) {
	router, l, met := newMiddlewareRouter()
	h := router.setResponseHeaders(router.requestLogger(&dummyHandler{}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/alive", nil))
	assert.Equal(t, http.StatusOK, rr.Code, "the request id is in the context")
	assert.Equal(t, "good", rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, 1, met.CounterValue("admin_requests"))

	msgs := l.Messages(config.DebugLevel)
	if assert.Len(t, msgs, 1) {
		assert.Equal(t, "handled unrouted request", msgs[0])
	}
	assert.Equal(t, http.StatusOK, l.Events[0].Fields["status"])
	assert.Len(t, l.Events[0].Fields["request_id"], 8)
}
