package middleware

import (
	"context"
	"net/http"

	apierrors "github.com/pribylovaa/print3d-auth/internal/http/errors"
	"github.com/pribylovaa/print3d-auth/pkg/jwt"
)

// Authenticator - то, что нужно мидлварам от сервисного слоя.
type Authenticator interface {
	AuthenticateHeader(ctx context.Context, header string) (*jwt.Claims, error)
	Authorize(claims *jwt.Claims, roles ...string) error
}

type ctxKeyClaims struct{}

// Authenticate проверяет Authorization: Bearer <token>. При успехе claims
// кладутся в контекст (ClaimsFrom), иначе - 401 в едином формате.
func Authenticate(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.AuthenticateHeader(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				apierrors.WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole пропускает только принципалов с одной из ролей.
// Ставится после Authenticate; без claims в контексте - 401, чужая роль - 403.
func RequireRole(a Authenticator, roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClaimsFrom(r.Context())
			if err := a.Authorize(claims, roles...); err != nil {
				apierrors.WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims кладёт claims принципала в контекст.
func WithClaims(ctx context.Context, c *jwt.Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims{}, c)
}

// ClaimsFrom достаёт claims принципала из контекста.
func ClaimsFrom(ctx context.Context) (*jwt.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims{}).(*jwt.Claims)
	return c, ok && c != nil
}
