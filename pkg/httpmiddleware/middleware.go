// Package httpmiddleware contains net/http middlewares shared by the HTTP
// servers: recovery, CORS, rate limiting, request ids, logging and
// OpenTelemetry instrumentation.
package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// RoutePattern returns the chi route pattern matched for r, or "unmatched".
// It is only populated once the router has dispatched the request, so callers
// must read it after calling the next handler.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter records the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	if sw, ok := w.(*statusWriter); ok {
		return sw
	}
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// writeError writes the API error envelope with the given status.
func writeError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("error", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("message", func(e *jx.Encoder) { e.Str(message) })
			})
		})
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
