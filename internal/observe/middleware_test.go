package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMiddleware(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	tests := []struct {
		name        string
		traceparent string
		status      int
	}{
		{"new trace", "", http.StatusOK},
		{"continued trace", "00-" + traceID + "-00f067aa0ba902b7-01", http.StatusOK},
		{"failing handler", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, exp := newTestTracerProvider(t)
			useTracerProvider(t, tp)
			m, reader := newTestMetrics(t)

			var seen string
			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
				w.WriteHeader(tt.status)
			}))
			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if len(seen) != 32 || rec.Header().Get("X-Correlation-ID") != seen {
				t.Errorf("correlation ID %q, header %q", seen, rec.Header().Get("X-Correlation-ID"))
			}
			if tt.traceparent != "" && seen != traceID {
				t.Errorf("trace not continued: %q", seen)
			}

			spans := exp.GetSpans()
			if len(spans) != 1 || spans[0].Name != "HTTP GET /readyz" {
				t.Fatalf("spans = %v", spans)
			}
			var code int64
			for _, a := range spans[0].Attributes {
				if a.Key == "http.response.status_code" {
					code = a.Value.AsInt64()
				}
			}
			if code != int64(tt.status) {
				t.Errorf("span status attribute = %d", code)
			}

			met := findMetric(collect(t, reader), "castmix.http.request.duration")
			if met == nil {
				t.Fatal("duration not recorded")
			}
			if hist := met.Data.(metricdata.Histogram[float64]); hist.DataPoints[0].Count != 1 {
				t.Errorf("count = %d", hist.DataPoints[0].Count)
			}
		})
	}
}
