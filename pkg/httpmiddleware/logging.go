package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// InjectLogger stores lg in the request context so handlers can retrieve it
// with zctx.From. The request id, when present, is attached as a field.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLg := lg
			if id := RequestIDFromContext(r.Context()); id != "" {
				reqLg = lg.With(zap.String("request_id", id))
			}
			next.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), reqLg)))
		})
	}
}

// LogRequests logs one line per request with the matched route, status and
// duration. Server errors are logged at error level.
func LogRequests() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", RoutePattern(r)),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Int("bytes", sw.bytes),
				zap.Duration("duration", time.Since(start)),
			}
			lg := zctx.From(r.Context())
			if sw.status >= http.StatusInternalServerError {
				lg.Error("Request", fields...)
				return
			}
			lg.Info("Request", fields...)
		})
	}
}
