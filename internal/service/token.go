package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/print3d-auth/internal/metrics"
	"github.com/pribylovaa/print3d-auth/internal/models"
	"github.com/pribylovaa/print3d-auth/internal/pkg/log"
	"github.com/pribylovaa/print3d-auth/internal/storage"
	"github.com/pribylovaa/print3d-auth/pkg/jwt"
)

const bearerScheme = "bearer"

// issueTokenPair выпускает access- и refresh-токен со случайными jti.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.token.issueTokenPair"

	now := s.now().UTC()

	access, err := s.codec.Issue(jwt.Claims{
		Subject: user.ID,
		Login:   user.Login,
		Email:   user.Email,
		Role:    user.Role,
		ID:      uuid.NewString(),
	}, s.cfg.AccessTokenTTL)
	if err != nil {
		log.From(ctx).Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := s.codec.Issue(jwt.Claims{
		Subject: user.ID,
		Type:    jwt.TypeRefresh,
		ID:      uuid.NewString(),
	}, s.cfg.RefreshTokenTTL)
	if err != nil {
		log.From(ctx).Error("refresh_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL).Truncate(time.Second),
	}, nil
}

// AccessTTL - срок жизни access-токена (expiresIn в ответе).
func (s *Service) AccessTTL() time.Duration {
	return s.cfg.AccessTokenTTL
}

// AuthenticateHeader проверяет значение заголовка Authorization и возвращает
// claims access-токена. Любая ошибка оборачивает ErrUnauthorized и причину,
// поэтому errors.Is работает для обеих.
func (s *Service) AuthenticateHeader(ctx context.Context, header string) (*jwt.Claims, error) {
	const op = "service.token.AuthenticateHeader"

	if strings.TrimSpace(header) == "" {
		s.metrics.TokenCheck(metrics.TokenMissing)
		return nil, fmt.Errorf("%s: %w: missing authorization header", op, ErrUnauthorized)
	}

	token, ok := parseBearer(header)
	if !ok {
		s.metrics.TokenCheck(metrics.TokenMalformed)
		return nil, fmt.Errorf("%s: %w: invalid authorization header format", op, ErrUnauthorized)
	}

	claims, err := s.codec.Verify(token)
	if err != nil {
		s.metrics.TokenCheck(verifyResult(err))
		log.From(ctx).Debug("token_rejected", slog.String("err", err.Error()))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
	}

	if claims.IsRefresh() {
		s.metrics.TokenCheck(metrics.TokenWrongType)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, ErrWrongTokenType)
	}

	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
	}

	s.metrics.TokenCheck(metrics.TokenOK)

	return claims, nil
}

// Authorize проверяет, что роль принципала входит в roles.
// Пустой список ролей пропускает любого аутентифицированного пользователя.
func (s *Service) Authorize(claims *jwt.Claims, roles ...string) error {
	if claims == nil {
		return ErrUnauthorized
	}

	if len(roles) == 0 {
		return nil
	}

	for _, r := range roles {
		if claims.Role == r {
			return nil
		}
	}

	return ErrForbidden
}

// Refresh обменивает refresh-токен на новую пару. Если denylist настроен,
// использованный refresh-токен отзывается. jti занимается только после
// загрузки пользователя: сбой БД не сжигает токен, и повтор проходит.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	const op = "service.token.Refresh"

	lg := log.From(ctx)

	claims, err := s.codec.Verify(strings.TrimSpace(refreshToken))
	if err != nil {
		lg.Info("refresh_rejected", slog.String("err", err.Error()))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if !claims.IsRefresh() {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, ErrWrongTokenType)
	}

	if err := s.checkRevoked(ctx, claims); err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			lg.Warn("refresh_reuse_detected", slog.Int64("user_id", claims.Subject))
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if s.denylist != nil && claims.ID != "" {
		// SETNX: из параллельных обменов одного токена выигрывает один.
		first, err := s.denylist.Revoke(ctx, claims.ID, time.Unix(claims.ExpiresAt, 0))
		if err != nil {
			lg.Error("denylist_revoke_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if !first {
			lg.Warn("refresh_reuse_detected", slog.Int64("user_id", claims.Subject))
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, ErrTokenRevoked)
		}
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, nil
}

// Logout отзывает access-токен текущего запроса и, если передан,
// refresh-токен того же пользователя. Refresh-токен проверяется до любого
// отзыва: при ошибке (401) не отозвано ничего, и клиент может повторить.
// Истёкший refresh-токен молча пропускается. Без denylist - no-op: токены
// умирают только по истечении срока.
func (s *Service) Logout(ctx context.Context, access *jwt.Claims, refreshToken string) error {
	const op = "service.token.Logout"

	if access == nil {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	if s.denylist == nil {
		return nil
	}

	var rc *jwt.Claims
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		c, err := s.codec.Verify(refreshToken)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			// уже недействителен.
		case err != nil:
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
		case !c.IsRefresh():
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, ErrWrongTokenType)
		case c.Subject != access.Subject:
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		default:
			rc = c
		}
	}

	if err := s.revoke(ctx, access); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rc != nil {
		if err := s.revoke(ctx, rc); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	log.From(ctx).Info("logout", slog.Int64("user_id", access.Subject))

	return nil
}

func (s *Service) revoke(ctx context.Context, c *jwt.Claims) error {
	if c.ID == "" {
		// токены, выпущенные до появления jti, отозвать точечно нельзя.
		return nil
	}

	_, err := s.denylist.Revoke(ctx, c.ID, time.Unix(c.ExpiresAt, 0))
	return err
}

// checkRevoked сверяет jti с denylist. Ошибка denylist - отказ в доступе.
func (s *Service) checkRevoked(ctx context.Context, c *jwt.Claims) error {
	if s.denylist == nil || c.ID == "" {
		return nil
	}

	revoked, err := s.denylist.IsRevoked(ctx, c.ID)
	if err != nil {
		s.metrics.TokenCheck(metrics.TokenError)
		log.From(ctx).Error("denylist_lookup_failed", slog.String("err", err.Error()))
		return err
	}

	if revoked {
		s.metrics.TokenCheck(metrics.TokenRevoked)
		return ErrTokenRevoked
	}

	return nil
}

// parseBearer разбирает "Bearer <token>": схема без учёта регистра,
// между схемой и токеном один или несколько пробелов, сам токен без пробелов.
func parseBearer(header string) (string, bool) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	token := strings.TrimLeft(rest, " ")
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}

	return token, true
}

func verifyResult(err error) string {
	switch {
	case errors.Is(err, jwt.ErrMalformedToken):
		return metrics.TokenMalformed
	case errors.Is(err, jwt.ErrInvalidSignature):
		return metrics.TokenInvalidSignature
	case errors.Is(err, jwt.ErrInvalidPayload):
		return metrics.TokenInvalidPayload
	case errors.Is(err, jwt.ErrTokenExpired):
		return metrics.TokenExpired
	default:
		return metrics.TokenError
	}
}
