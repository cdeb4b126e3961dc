package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryProvider is implemented by *app.Telemetry.
type TelemetryProvider interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Instrument wraps handlers with otelhttp server spans and metrics.
func Instrument(operation string, m TelemetryProvider) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, operation,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		)
	}
}

// Route annotates a routed handler with its pattern: the server span is
// renamed, the otelhttp metric labels gain http.route, and LogRequests picks
// the pattern up.
func Route(pattern string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if holder, ok := ctx.Value(routeKey{}).(*routeHolder); ok {
			holder.pattern = pattern
		}
		route := attribute.String("http.route", pattern)
		if labeler, ok := otelhttp.LabelerFromContext(ctx); ok {
			labeler.Add(route)
		}
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetName(pattern)
			span.SetAttributes(route)
		}
		h.ServeHTTP(w, r)
	})
}
