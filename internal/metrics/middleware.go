package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HTTPMiddleware instruments every request with http_requests_total and
// http_request_duration_seconds, adapted from the Link repo's GinMiddleware
// onto chi's plain http.Handler signature (the teacher's router), and
// skipping /metrics itself the same way that file does.
func (r *Recorder) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/metrics" {
			next.ServeHTTP(w, req)
			return
		}

		start := time.Now()
		route := NormalizePath(req.URL.Path)
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(ww.Status())

		r.HTTPRequestsTotal.WithLabelValues(req.Method, route, status).Inc()
		r.HTTPRequestDuration.WithLabelValues(req.Method, route, status).Observe(duration)
	})
}
