package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/avaforum/internal/util"
)

// timingResponseWriter stamps the elapsed time header just before the
// header block is sent.
type timingResponseWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (w *timingResponseWriter) stamp() {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	elapsed := time.Since(w.start)
	w.Header().Set(HeaderXProcessingTime, strconv.FormatInt(elapsed.Milliseconds(), 10)+"ms")
}

// WriteHeader implements http.ResponseWriter.
func (w *timingResponseWriter) WriteHeader(code int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

// Write implements http.ResponseWriter.
func (w *timingResponseWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (w *timingResponseWriter) Flush() {
	w.stamp()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Timing returns a middleware that records the request start time in the
// context and reports the processing time in X-Processing-Time.
func Timing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := util.ContextWithStartTime(r.Context(), start)
			tw := &timingResponseWriter{ResponseWriter: w, start: start}

			next.ServeHTTP(tw, r.WithContext(ctx))
			tw.stamp()
		})
	}
}
