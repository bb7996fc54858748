package interceptor

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Logging returns a gRPC UnaryServerInterceptor that logs each call and
// converts a panicking handler into codes.Internal.
func Logging() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				slog.Error("grpc: handler panic", "method", info.FullMethod, "panic", p)
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}

			code := status.Code(err)
			attrs := []any{
				"method", info.FullMethod,
				"code", code.String(),
				"duration", time.Since(start),
			}
			if code != codes.OK {
				slog.Warn("grpc: call failed", append(attrs, "err", err)...)
				return
			}
			slog.Debug("grpc: call", attrs...)
		}()

		return handler(ctx, req)
	}
}
