package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/pribylovaa/print3d-auth/internal/cache"
	"github.com/pribylovaa/print3d-auth/internal/config"
	authhttp "github.com/pribylovaa/print3d-auth/internal/http"
	"github.com/pribylovaa/print3d-auth/internal/metrics"
	"github.com/pribylovaa/print3d-auth/internal/service"
	"github.com/pribylovaa/print3d-auth/internal/storage/postgres"
	"github.com/pribylovaa/print3d-auth/pkg/jwt"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	// Пустой или «учебный» секрет в prod - panic здесь, до старта серверов.
	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("service_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}

	log.Info("service_stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// Подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		return err
	}
	defer str.Close()
	log.Info("postgres_connected")

	m := metrics.New(prometheus.DefaultRegisterer)

	srvc := service.New(str, jwt.New([]byte(cfg.Auth.JWTSecret)), cfg.Auth)
	srvc.SetMetrics(m)
	defer srvc.Wait()

	if cfg.Redis.RedisURL != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		denylist, err := cache.NewRedisDenylist(redisCtx, cfg.Redis.RedisURL, cfg.Redis.Prefix)
		redisCancel()
		if err != nil {
			return err
		}
		defer denylist.Close()

		srvc.SetDenylist(denylist)
		log.Info("redis_denylist_enabled")
	}

	if cfg.Seed.UsersPath != "" {
		created, err := srvc.SeedFromFile(ctx, cfg.Seed.UsersPath)
		if err != nil {
			return err
		}
		log.Info("users_seeded", slog.Int("created", created))
	}

	log.Info("service_initialized")

	var ready atomic.Bool

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr: httpAddr,
		Handler: newMux(&ready, srvc, authhttp.NewRouter(srvc, authhttp.Options{
			Logger:  log,
			Timeout: cfg.Timeouts.Service,
			Metrics: m,
		})),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 2)

	go func() {
		log.Info("http_listen_start", slog.String("addr", httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()

	var ops *opsServer
	if cfg.GRPC.Enabled {
		addr := cfg.GRPC.Addr()
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			_ = httpSrv.Shutdown(context.Background())
			return err
		}

		ops = newOpsServer(log, cfg)
		log.Info("grpc_listen_start", slog.String("addr", addr))

		go func() {
			if err := ops.srv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				serveErrCh <- err
			}
		}()
	}

	// Сервис готов: readiness=1 и health -> SERVING.
	ready.Store(true)
	if ops != nil {
		ops.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case runErr = <-serveErrCh:
		log.Error("serve_failed", slog.String("err", runErr.Error()))
	}

	ready.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if ops != nil {
		ops.stop(shutdownCtx, log)
	}

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
	}
	log.Info("http_stopped")

	return runErr
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
