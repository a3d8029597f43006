// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
//
// Источники (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. только переменные окружения (cleanenv).
//
// После чтения конфиг проходит Validate: пустой или «учебный» секрет подписи
// в prod - фатальная ошибка старта.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Окружения.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// minProdSecretLen - минимальная длина секрета подписи в prod.
const minProdSecretLen = 32

var (
	// ErrEmptySecret - секрет подписи не задан.
	ErrEmptySecret = errors.New("auth.jwt_secret is empty")
	// ErrInsecureSecret - в prod задан известный плейсхолдер или слишком короткий секрет.
	ErrInsecureSecret = errors.New("auth.jwt_secret is a placeholder or too short for prod")
)

// placeholderSecrets - значения из примеров конфигов и README, которые нельзя
// использовать в боевом окружении.
var placeholderSecrets = map[string]struct{}{
	"change-me":                            {},
	"changeme":                             {},
	"secret":                               {},
	"dev-secret-change-me":                 {},
	"your-secret-key":                      {},
	"your-secret-key-change-in-production": {},
}

// Config - корневая конфигурация сервиса.
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	GRPC     GRPCConfig    `yaml:"grpc"`
	Auth     AuthConfig    `yaml:"auth"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Seed     SeedConfig    `yaml:"seed"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig - таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig - публичный REST-сервер (API, /livez, /healthz, /metrics).
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// GRPCConfig - служебный gRPC-сервер с grpc.health.v1 для оркестратора.
type GRPCConfig struct {
	Enabled bool   `yaml:"enabled" env:"GRPC_ENABLED" env-default:"false"`
	Host    string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port    string `yaml:"port" env:"GRPC_PORT" env-default:"50051"`
}

// Addr возвращает адрес в формате host:port.
func (g GRPCConfig) Addr() string {
	return net.JoinHostPort(g.Host, g.Port)
}

// AuthConfig содержит параметры выпуска и проверки токенов.
type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	AccessTokenTTL   time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"1h"`
	RefreshTokenTTL  time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	LastLoginTimeout time.Duration `yaml:"last_login_timeout" env:"LAST_LOGIN_TIMEOUT" env-default:"3s"`
}

// DBConfig - настройки подключения к базе данных.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig - denylist отозванных токенов. Пустой URL - denylist выключен.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"auth:deny:"`
}

// SeedConfig - начальные пользователи из YAML-файла. Пустой путь - без сидинга.
type SeedConfig struct {
	UsersPath string `yaml:"users_path" env:"SEED_USERS_PATH"`
}

// MustLoad - обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла поверх значений из YAML накладываются ENV-переменные.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	var (
		res *Config
		err error
	)

	switch envPath := os.Getenv("CONFIG_PATH"); {
	case path != "":
		res, err = tryRead(path)
	case envPath != "":
		res, err = tryRead(envPath)
	default:
		if _, statErr := os.Stat("local.yaml"); statErr == nil {
			res, err = tryRead("local.yaml")
		} else if err = cleanenv.ReadEnv(&cfg); err != nil {
			err = fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
		} else {
			res = &cfg
		}
	}

	if err != nil {
		return nil, err
	}

	if err := res.Validate(); err != nil {
		return nil, err
	}

	return res, nil
}

// Validate проверяет инварианты, без которых сервис стартовать не должен.
func (c *Config) Validate() error {
	secret := strings.TrimSpace(c.Auth.JWTSecret)
	if secret == "" {
		return ErrEmptySecret
	}

	if c.Env == EnvProd {
		if _, ok := placeholderSecrets[strings.ToLower(secret)]; ok || len(secret) < minProdSecretLen {
			return ErrInsecureSecret
		}
	}

	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive: access=%s refresh=%s",
			c.Auth.AccessTokenTTL, c.Auth.RefreshTokenTTL)
	}

	return nil
}
