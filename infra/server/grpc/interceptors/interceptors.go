package interceptors

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Logger adapts slog to the go-grpc-middleware logging interface.
func Logger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

// RecoveryHandler turns a handler panic into codes.Internal and logs the stack.
func RecoveryHandler(l *slog.Logger) recovery.RecoveryHandlerFuncContext {
	return func(ctx context.Context, p any) error {
		l.ErrorContext(ctx, "GRPC_PANIC_RECOVERED", "err", p, "stack", string(debug.Stack()))
		return status.Errorf(codes.Internal, "internal error")
	}
}

// ServerOptions assembles the interceptor chain shared by every service.
func ServerOptions(l *slog.Logger) []grpc.ServerOption {
	logOpts := []logging.Option{
		logging.WithLogOnEvents(logging.FinishCall),
	}
	recOpts := []recovery.Option{
		recovery.WithRecoveryHandlerContext(RecoveryHandler(l)),
	}
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			logging.UnaryServerInterceptor(Logger(l), logOpts...),
			recovery.UnaryServerInterceptor(recOpts...),
		),
		grpc.ChainStreamInterceptor(
			logging.StreamServerInterceptor(Logger(l), logOpts...),
			recovery.StreamServerInterceptor(recOpts...),
		),
	}
}
