package telemetry

import (
	"context"
	"log/slog"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"
)

// GRPCServerInterceptor logs the finish of every unary and streaming call.
func GRPCServerInterceptor() []grpc.ServerOption {
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.FinishCall),
	}

	l := grpcServerLogger(slog.Default())

	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(logging.UnaryServerInterceptor(l, opts...)),
		grpc.ChainStreamInterceptor(logging.StreamServerInterceptor(l, opts...)),
	}
}

func grpcServerLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}
