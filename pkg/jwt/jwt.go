package jwt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedToken - строка не состоит ровно из трёх сегментов.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature - подпись не совпала с пересчитанной.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidPayload - payload не декодируется или не содержит обязательных claims.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrTokenExpired - exp в прошлом.
	ErrTokenExpired = errors.New("token expired")
	// ErrEmptySecret - кодек создан без секрета.
	ErrEmptySecret = errors.New("empty signing secret")
)

// headerSegment - base64url от {"typ":"JWT","alg":"HS256"}.
// Порядок ключей важен для совместимости с уже выданными токенами.
var headerSegment = encodeSegment([]byte(`{"typ":"JWT","alg":"HS256"}`))

// Codec выпускает и проверяет токены одним общим секретом.
// Безопасен для конкурентного использования.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option настраивает Codec.
type Option func(*Codec)

// WithClock подменяет источник времени (тесты, симуляция истечения).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// New создаёт кодек. Секрет копируется.
func New(secret []byte, opts ...Option) *Codec {
	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Issue подписывает claims, проставляя iat=now и exp=now+ttl.
// ttl <= 0 даёт заведомо просроченный токен.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	const op = "jwt.Issue"

	if len(c.secret) == 0 {
		return "", fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	now := c.now().Unix()
	claims.IssuedAt = now
	claims.ExpiresAt = now + int64(ttl/time.Second)

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	signingString := headerSegment + "." + encodeSegment(payload)

	sig, err := gojwt.SigningMethodHS256.Sign(signingString, c.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signingString + "." + encodeSegment(sig), nil
}

// Verify проверяет токен и возвращает его claims.
// Ошибки: ErrMalformedToken, ErrInvalidSignature, ErrInvalidPayload, ErrTokenExpired.
func (c *Codec) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	if len(c.secret) == 0 {
		return nil, ErrEmptySecret
	}

	signingString := parts[0] + "." + parts[1]

	sig, err := decodeSegment(parts[2])
	if err != nil {
		return nil, ErrInvalidSignature
	}

	// hmac.Equal внутри - сравнение за постоянное время.
	if err := gojwt.SigningMethodHS256.Verify(signingString, sig, c.secret); err != nil {
		return nil, ErrInvalidSignature
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if claims.ExpiresAt < c.now().Unix() {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeSegment принимает сегменты как без паддинга, так и с ним.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
