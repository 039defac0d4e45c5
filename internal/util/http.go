package util

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// StatusClientClosedRequest is the non-standard status used when the
// client went away before a response was produced.
const StatusClientClosedRequest = 499

// StatusCapturingResponseWriter wraps http.ResponseWriter to track status code.
// It is used by access logging and timing middleware that need to inspect
// the response status code after the handler has completed.
type StatusCapturingResponseWriter struct {
	http.ResponseWriter
	StatusCode    int
	BytesWritten  int
	HeaderWritten bool
}

// NewStatusCapturingResponseWriter creates a new StatusCapturingResponseWriter
// wrapping the provided http.ResponseWriter with a default status of 200 OK.
func NewStatusCapturingResponseWriter(w http.ResponseWriter) *StatusCapturingResponseWriter {
	return &StatusCapturingResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code and writes it to the underlying ResponseWriter.
func (w *StatusCapturingResponseWriter) WriteHeader(code int) {
	if w.HeaderWritten {
		return
	}
	w.StatusCode = code
	w.HeaderWritten = true
	w.ResponseWriter.WriteHeader(code)
}

// Write writes data to the underlying ResponseWriter and marks header as written.
func (w *StatusCapturingResponseWriter) Write(b []byte) (int, error) {
	if !w.HeaderWritten {
		w.HeaderWritten = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.BytesWritten += n
	return n, err
}

// Flush implements http.Flusher interface for streaming support.
func (w *StatusCapturingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Compile-time interface assertion.
var _ http.Flusher = (*StatusCapturingResponseWriter)(nil)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string       `json:"error"`
	Message   string       `json:"message"`
	RequestID string       `json:"requestId,omitempty"`
	Fields    []FieldError `json:"fields,omitempty"`
}

// HTTPStatus maps an error onto the taxonomy status code.
func HTTPStatus(err error) int {
	var cancelled *CancelledError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &cancelled):
		if cancelled.TimedOut {
			return http.StatusGatewayTimeout
		}
		return StatusClientClosedRequest
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorBody builds the response body for err. Internal and unclassified
// errors get a generic message so backend details never leave the process.
func NewErrorBody(err error, requestID string) ErrorBody {
	status := HTTPStatus(err)
	body := ErrorBody{
		Error:     errorCode(status),
		RequestID: requestID,
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		body.Message = "one or more fields are invalid"
		body.Fields = validation.Failures
		return body
	}

	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		body.Message = "an unexpected error occurred"
		return body
	}

	body.Message = err.Error()
	return body
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, requestID string, err error) {
	status := HTTPStatus(err)
	body := NewErrorBody(err, requestID)

	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case StatusClientClosedRequest:
		return "request_cancelled"
	case http.StatusGatewayTimeout:
		return "request_timeout"
	default:
		return "internal_error"
	}
}
