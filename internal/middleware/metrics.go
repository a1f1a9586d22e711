package middleware

import (
	"net/http"
	"strconv"
	"time"

	"lotusflow/studiosync/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records request counts, latency, and in-flight gauges
func MetricsMiddleware(reg *metrics.MetricsRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := r.URL.Path
			reg.HTTPRequestsInFlight.WithLabelValues(endpoint).Inc()
			defer reg.HTTPRequestsInFlight.WithLabelValues(endpoint).Dec()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			dur := time.Since(start)

			reg.HTTPRequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(rec.status)).Inc()
			reg.HTTPRequestDuration.WithLabelValues(endpoint, r.Method).Observe(dur.Seconds())
		})
	}
}
