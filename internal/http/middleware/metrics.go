package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pribylovaa/print3d-auth/internal/metrics"
)

// Metrics учитывает запросы в http_requests_total и http_request_duration_seconds.
// Метка route - шаблон маршрута chi; для не найденных маршрутов "unmatched".
func Metrics(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}

			m.ObserveHTTP(r.Method, route, sw.Status(), time.Since(start))
		})
	}
}
