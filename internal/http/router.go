package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/print3d-auth/internal/http/handlers"
	"github.com/pribylovaa/print3d-auth/internal/http/middleware"
	"github.com/pribylovaa/print3d-auth/internal/metrics"
	"github.com/pribylovaa/print3d-auth/internal/models"
	"github.com/pribylovaa/print3d-auth/internal/service"
)

// Options - параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	Metrics *metrics.Metrics // nil - без HTTP-метрик
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // X-Request-Id до логирования
		middleware.Logging(opts.Logger), // request-scoped логгер в контексте
		middleware.Metrics(opts.Metrics),
		middleware.Timeout(opts.Timeout), // общий дедлайн запроса
	)

	registerRoutes(root, svc, handlers.New(svc))

	return root
}

// registerRoutes - единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, svc *service.Service, h *handlers.Handlers) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)

		// дальше - только с валидным access-токеном.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(svc))

			r.Post("/logout", h.Logout)
			r.Get("/me", h.Me)
			r.Get("/verify", h.Verify)

			r.With(middleware.RequireRole(svc, models.RoleAdmin)).
				Post("/users", h.CreateUser)
		})
	})
}
