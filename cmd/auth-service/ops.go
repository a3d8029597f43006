package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pribylovaa/print3d-auth/internal/config"
	"github.com/pribylovaa/print3d-auth/internal/interceptors"
)

// pinger - зависимость readiness-пробы.
type pinger interface {
	Ping(ctx context.Context) error
}

// newMux вешает служебные эндпойнты рядом с API.
//
//	/livez   - процесс жив;
//	/healthz - готов принимать трафик и БД/Redis отвечают;
//	/metrics - Prometheus.
func newMux(ready *atomic.Bool, deps pinger, api http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := deps.Ping(ctx); err != nil {
			slog.Default().Warn("readiness_ping_failed", slog.String("err", err.Error()))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api)

	return mux
}

// opsServer - gRPC-сервер только с grpc.health.v1 (и reflection в local/dev).
type opsServer struct {
	srv    *grpc.Server
	health *health.Server
}

func newOpsServer(log *slog.Logger, cfg *config.Config) *opsServer {
	grpc_prometheus.EnableHandlingTimeHistogram()

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.Recover(log),
			interceptors.UnaryLoggingInterceptor(log),
			interceptors.WithTimeout(cfg.Timeouts.Service),
			grpc_prometheus.UnaryServerInterceptor,
		),
		grpc.ChainStreamInterceptor(
			interceptors.StreamRecover(log),
			grpc_prometheus.StreamServerInterceptor,
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	// Рефлексия - только в local/dev.
	if cfg.Env == config.EnvLocal || cfg.Env == config.EnvDev {
		reflection.Register(srv)
	}

	grpc_prometheus.Register(srv)

	return &opsServer{srv: srv, health: hs}
}

// stop переводит health в NOT_SERVING и останавливает сервер,
// принудительно - если не уложились в ctx.
func (o *opsServer) stop(ctx context.Context, log *slog.Logger) {
	o.health.Shutdown()

	done := make(chan struct{})
	go func() {
		o.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc_stopped")
	case <-ctx.Done():
		log.Warn("grpc_force_stop")
		o.srv.Stop()
	}
}
