package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/comanda/internal/observability"
	"github.com/Zhima-Mochi/comanda/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// ObservabilityMiddleware enriches every request with a request-scoped logger
// (request id + trace ids) and records RED metrics per route template. The
// request id is taken from the caller when present, generated otherwise, and
// echoed back in the response.
func ObservabilityMiddleware(
	base observability.Logger,
	requestID func(r *http.Request) string,
	tel observability.Telemetry,
) func(http.Handler) http.Handler {
	if base == nil {
		base = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := ""
			if requestID != nil {
				reqID = requestID(r)
			}
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(headerRequestID, reqID)

			fields := []observability.Field{
				observability.F("request_id", reqID),
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				fields = append(fields,
					observability.F("trace_id", sc.TraceID().String()),
					observability.F("span_id", sc.SpanID().String()),
				)
			}

			ctx := logctx.With(r.Context(), base.With(fields...))
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(ctx))

			if tel == nil {
				return
			}
			route := routeFromContext(ctx)
			labels := []observability.Label{
				observability.L("method", r.Method),
				observability.L("route", route),
				observability.L("status", strconv.Itoa(rec.status)),
			}
			tel.Counter(observability.MHTTPRequests).Add(1, labels...)
			tel.Histogram(observability.MHTTPRequestDuration).Observe(time.Since(start).Seconds(), labels...)
		})
	}
}
