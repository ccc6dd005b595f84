package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instrument wraps requests in an otelhttp server span and records a
// per-route error response counter. The span is renamed to "METHOD route"
// and the route is added to otelhttp metrics once routing is done.
func Instrument(service string, tp trace.TracerProvider, mp metric.MeterProvider) Middleware {
	errorResponses, err := mp.Meter(service).Int64Counter("http.server.error_responses",
		metric.WithDescription("Number of responses with a 4xx or 5xx status"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return func(next http.Handler) http.Handler {
		labeled := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			route := RoutePattern(r)
			routeAttr := attribute.String("http.route", route)
			if labeler, ok := otelhttp.LabelerFromContext(r.Context()); ok {
				labeler.Add(routeAttr)
			}
			span := trace.SpanFromContext(r.Context())
			span.SetName(r.Method + " " + route)
			span.SetAttributes(routeAttr)

			if sw.status >= http.StatusBadRequest && errorResponses != nil {
				errorResponses.Add(r.Context(), 1, metric.WithAttributes(
					routeAttr,
					attribute.Int("http.response.status_code", sw.status),
				))
			}
		})
		return otelhttp.NewHandler(labeled, service,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		)
	}
}
