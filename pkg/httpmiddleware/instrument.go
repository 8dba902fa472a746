package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides tracer and meter providers. It is implemented by
// *app.Telemetry from go-faster/sdk.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Instrument traces and measures requests. Span names use the matched route
// so path parameters do not explode cardinality.
func Instrument(serviceName string, find RouteFinder, t Telemetry) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "",
			otelhttp.WithServerName(serviceName),
			otelhttp.WithTracerProvider(t.TracerProvider()),
			otelhttp.WithMeterProvider(t.MeterProvider()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if route, ok := find(r); ok {
					return route
				}
				return r.Method + " unknown"
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/livez" && r.URL.Path != "/readyz"
			}),
		)
	}
}

// Labeler adds the http.route attribute to otelhttp metrics. It must run
// inside Instrument.
func Labeler(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if route, ok := find(r); ok {
				l, _ := otelhttp.LabelerFromContext(r.Context())
				l.Add(attribute.String("http.route", route))
			}
			next.ServeHTTP(w, r)
		})
	}
}
