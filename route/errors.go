package route

import (
	"net/http"
)

type handlerError struct {
	// err is the error that we're throwing
	err error
	// msg is the human-readable context with which we're throwing the error
	msg string
	// status is the HTTP status code we should return
	status int
	// detailed is whether the err itself should be included in the msg response
	detailed bool
	// friendly is whether the msg can be returned as is or if we should use a
	// generic error
	friendly bool
}

var ErrGenericMessage = "unexpected error!"

var (
	ErrJSONBuildFailed  = handlerError{nil, "failed to build response", http.StatusInternalServerError, false, true}
	ErrInvalidTraceID   = handlerError{nil, "invalid trace id", http.StatusBadRequest, true, true}
	ErrInvalidParam     = handlerError{nil, "invalid parameter", http.StatusBadRequest, true, true}
	ErrNotSupported     = handlerError{nil, "not supported by the configured sampler", http.StatusNotFound, true, true}
	ErrTraceNotFound    = handlerError{nil, "trace not found", http.StatusNotFound, false, true}
	ErrMethodNotAllowed = handlerError{nil, "method not allowed", http.StatusMethodNotAllowed, true, true}
	ErrCaughtPanic      = handlerError{nil, "caught panic", http.StatusInternalServerError, false, false}
)

func (r *Router) handlerReturnWithError(w http.ResponseWriter, he handlerError, err error) {
	if err != nil {
		he.err = err
	}
	if r.Metrics != nil {
		r.Metrics.Increment("admin_errors")
	}

	entry := r.Logger.Debug()
	if he.status >= http.StatusInternalServerError {
		entry = r.Logger.Error()
	}
	entry.WithFields(map[string]any{
		"error.message": he.err.Error(),
		"status":        he.status,
	}).Logf("returning error: %s", he.msg)

	w.WriteHeader(he.status)
	errmsg := he.msg
	if he.detailed {
		errmsg = he.msg + ": " + he.err.Error()
	}
	if !he.friendly {
		errmsg = ErrGenericMessage
	}
	body, _ := json.Marshal(map[string]string{"error": errmsg})
	w.Write(body)
}
