package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	apierrors "github.com/pribylovaa/print3d-auth/internal/http/errors"
)

// Timeout ограничивает запрос бюджетом timeouts.service: его делят bcrypt,
// запрос в Postgres и обращение к denylist. Более ранний дедлайн входящего
// контекста сохраняется, d <= 0 выключает мидлвар.
//
// Если обработчик вернулся по дедлайну, ничего не записав, клиент получает
// 504 deadline_exceeded в общем формате ошибок.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			if sw.status == 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				apierrors.WriteError(sw, r, context.DeadlineExceeded)
			}
		})
	}
}
