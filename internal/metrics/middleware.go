package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// statusRecorder captures the response code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency for every route. It must run
// inside a chi router so the route pattern is available for labeling.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		ObserveHTTPRequest(r.Method, route, recorder.status, time.Since(start))
	})
}
