// File: internal/server/middleware.go
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// metricsMiddleware records request count and latency per route. Only
// installed when a metrics manager is configured.
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		s.metricsManager.GetPrometheusMetrics().RecordHTTPRequest(
			r.Method,
			routeTemplate(r),
			strconv.Itoa(recorder.status),
			time.Since(start),
		)
	})
}

// statusRecorder captures the response status for the metrics labels
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// routeTemplate prefers the mux route template over the raw path so the
// path label stays low-cardinality
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return r.URL.Path
}
