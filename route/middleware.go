package route

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type requestIDContextKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// panicCatcher recovers any panics, sets a 500, and returns an obvious error
func (r *Router) panicCatcher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rcvr := recover(); rcvr != nil {
				err, ok := rcvr.(error)

				if !ok {
					err = fmt.Errorf("caught panic: %v", rcvr)
				}

				r.handlerReturnWithError(w, ErrCaughtPanic, err)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

// requestLogger logs one line debug per request that comes through the admin API
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		arrivalTime := time.Now()
		route := mux.CurrentRoute(req)

		// generate a request ID and put it in the context for logging
		reqID := randStringBytes(8)
		req = req.WithContext(context.WithValue(req.Context(), requestIDContextKey{}, reqID))

		wrapped := statusRecorder{w, http.StatusOK}
		next.ServeHTTP(&wrapped, req)
		r.Metrics.Increment("admin_requests")

		name := "unrouted"
		if route != nil {
			name = route.GetName()
		}
		r.Logger.Debug().WithFields(map[string]any{
			"request_id": reqID,
			"remote_ip":  req.RemoteAddr,
			"method":     req.Method,
			"url":        req.URL.String(),
			"duration":   time.Since(arrivalTime),
			"status":     wrapped.status,
		}).Logf("handled %s request", name)
	})
}

func (r *Router) setResponseHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Set content type header early so it's before any calls to WriteHeader
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, req)
	})
}

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randStringBytes makes us a request ID for logging.
func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.IntN(len(letterBytes))]
	}
	return string(b)
}
