package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist - отозванные токены по jti. Запись живёт до exp токена:
// после этого токен и так не пройдёт проверку.
type Denylist interface {
	// Revoke заносит jti в denylist до момента until. Возвращает false, если jti
	// уже был отозван ранее. Уже истёкшие токены не записываются (true, nil).
	Revoke(ctx context.Context, jti string, until time.Time) (bool, error)
	// IsRevoked сообщает, отозван ли jti.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Ping проверяет доступность хранилища (readiness).
	Ping(ctx context.Context) error
	// Close закрывает клиент Redis.
	Close() error
}

// ErrEmptyJTI - токен без jti нельзя отозвать точечно.
var ErrEmptyJTI = errors.New("empty jti")

type redisDenylist struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisDenylist создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой - используется "auth:deny:".
func NewRedisDenylist(ctx context.Context, redisURL, prefix string) (Denylist, error) {
	const op = "cache.NewRedisDenylist"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return newRedisDenylist(rdb, prefix), nil
}

func newRedisDenylist(rdb *redis.Client, prefix string) *redisDenylist {
	if prefix == "" {
		prefix = "auth:deny:"
	}

	return &redisDenylist{rdb: rdb, prefix: prefix, now: time.Now}
}

func (d *redisDenylist) key(jti string) string { return d.prefix + jti }

// Revoke использует SET NX: из двух конкурентных ротаций одного refresh-токена
// успешной будет ровно одна.
func (d *redisDenylist) Revoke(ctx context.Context, jti string, until time.Time) (bool, error) {
	const op = "cache.Revoke"

	if jti == "" {
		return false, fmt.Errorf("%s: %w", op, ErrEmptyJTI)
	}

	// exp в JWT - целые секунды, а токен валиден и в секунду exp.
	ttl := until.Add(time.Second).Sub(d.now())
	if ttl <= 0 {
		return true, nil
	}

	ok, err := d.rdb.SetNX(ctx, d.key(jti), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

func (d *redisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const op = "cache.IsRevoked"

	if jti == "" {
		return false, nil
	}

	n, err := d.rdb.Exists(ctx, d.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func (d *redisDenylist) Ping(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}

func (d *redisDenylist) Close() error { return d.rdb.Close() }
