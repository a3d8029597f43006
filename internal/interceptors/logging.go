package interceptors

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/print3d-auth/internal/pkg/log"
)

// healthPrefix - пробы оркестратора идут сюда каждые несколько секунд,
// успешные логируем на Debug.
const healthPrefix = "/grpc.health.v1.Health/"

// UnaryLoggingInterceptor кладёт в контекст логгер с request_id/method/peer
// и после вызова пишет одну запись "grpc" с кодом и длительностью.
// request_id берётся из metadata x-request-id, иначе генерируется UUID.
func UnaryLoggingInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		l := base.With(
			slog.String("request_id", requestID(ctx)),
			slog.String("method", info.FullMethod),
			slog.String("peer", peerAddr(ctx)),
		)
		ctx = log.Into(ctx, l)

		resp, err := handler(ctx, req)

		lvl := slog.LevelInfo
		if err == nil && strings.HasPrefix(info.FullMethod, healthPrefix) {
			lvl = slog.LevelDebug
		}

		l.LogAttrs(ctx, lvl, "grpc",
			slog.String("code", status.Code(err).String()),
			slog.Duration("dur", time.Since(start)),
		)

		return resp, err
	}
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-request-id"); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}

	return uuid.NewString()
}

// peerAddr - IP:port клиента или "-".
func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p != nil && p.Addr != nil {
		return p.Addr.String()
	}

	return "-"
}
