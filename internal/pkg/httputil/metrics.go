package httputil

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
	"github.com/go-chi/chi/v5/middleware"
)

// MetricsMiddleware records HTTP request duration labelled by chi route pattern.
// It must run before routing so the full request time is measured.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Route pattern instead of path keeps label cardinality bounded.
		route := routePattern(r)
		if route == "" {
			route = "unknown"
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method,
			route,
			strconv.Itoa(status),
		).Observe(time.Since(start).Seconds())
	})
}
