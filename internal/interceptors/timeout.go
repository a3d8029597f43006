package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// WithTimeout навешивает дедлайн d, если у входящего контекста его нет.
// d <= 0 отключает интерсептор.
func WithTimeout(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}

		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		return handler(ctx, req)
	}
}
