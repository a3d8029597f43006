// service содержит бизнес-логику сервиса аутентификации студии:
// проверку логина/пароля, выпуск и проверку токенов, ротацию refresh-токенов,
// отзыв (logout) и управление учётными записями.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для конкурентного
//     использования, если хранилище и denylist потокобезопасны.
//   - Единственная горутина на запрос - фоновое обновление last_login_at после
//     успешного входа; её ошибки только логируются.
//   - Ошибки возвращаются как значения и маппятся в HTTP-коды только транспортом
//     (см. комментарии к переменным ошибок ниже).
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pribylovaa/print3d-auth/internal/cache"
	"github.com/pribylovaa/print3d-auth/internal/config"
	"github.com/pribylovaa/print3d-auth/internal/metrics"
	"github.com/pribylovaa/print3d-auth/internal/storage"
	"github.com/pribylovaa/print3d-auth/pkg/jwt"
)

var (
	// ErrInvalidCredentials - пользователь не найден, неактивен или пароль неверен.
	// Причина наружу не раскрывается. Транспорт: HTTP 401 invalid_credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized - запрос без валидного bearer-токена. Оборачивает причину
	// (jwt.ErrMalformedToken, jwt.ErrTokenExpired, ErrWrongTokenType, ErrTokenRevoked...).
	// Транспорт: HTTP 401 unauthorized.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrWrongTokenType - refresh-токен предъявлен вместо access или наоборот.
	ErrWrongTokenType = errors.New("wrong token type")

	// ErrTokenRevoked - jti токена находится в denylist (logout/ротация).
	ErrTokenRevoked = errors.New("token revoked")

	// ErrInvalidToken - refresh-токен непригоден для обновления пары.
	// Транспорт: HTTP 401 unauthorized.
	ErrInvalidToken = errors.New("invalid token")

	// ErrForbidden - роль принципала не допускает операцию. Транспорт: HTTP 403.
	ErrForbidden = errors.New("forbidden")

	// ErrLoginTaken - логин или email уже заняты. Транспорт: HTTP 409.
	ErrLoginTaken = errors.New("login already taken")

	// ErrUserNotFound - пользователь не найден (профиль). Транспорт: HTTP 404.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidLogin - логин не проходит политику. Транспорт: HTTP 400.
	ErrInvalidLogin = errors.New("invalid login")

	// ErrInvalidEmail - email некорректен. Транспорт: HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword - пароль не удовлетворяет политике. Транспорт: HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrInvalidRole - неизвестная роль. Транспорт: HTTP 400.
	ErrInvalidRole = errors.New("invalid role")
)

const defaultLastLoginTimeout = 3 * time.Second

// Service описывает бизнес-логику сервиса аутентификации.
type Service struct {
	storage  storage.Storage
	codec    *jwt.Codec
	cfg      config.AuthConfig
	denylist cache.Denylist // может быть nil, если Redis не сконфигурирован
	metrics  *metrics.Metrics
	now      func() time.Time

	// bg - фоновые обновления last_login_at; ждём их при остановке.
	bg sync.WaitGroup
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, codec *jwt.Codec, cfg config.AuthConfig) *Service {
	if cfg.LastLoginTimeout <= 0 {
		cfg.LastLoginTimeout = defaultLastLoginTimeout
	}

	return &Service{
		storage: storage,
		codec:   codec,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetDenylist включает отзыв токенов (опционально).
func (s *Service) SetDenylist(d cache.Denylist) {
	s.denylist = d
}

// SetMetrics подключает Prometheus-счётчики (опционально).
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Ping проверяет зависимости сервиса для readiness-пробы.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.storage.Ping(ctx); err != nil {
		return err
	}

	if s.denylist != nil {
		return s.denylist.Ping(ctx)
	}

	return nil
}

// Wait дожидается завершения фоновых обновлений last_login_at.
func (s *Service) Wait() {
	s.bg.Wait()
}
