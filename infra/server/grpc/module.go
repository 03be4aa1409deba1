package grpcsrv

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/worker"
)

var Module = fx.Module("grpc-server",
	fx.Provide(func(cfg *config.Config, logger *slog.Logger, w *worker.Worker) *Server {
		// [HEALTH_PROBE] serving while the worker drains the queue
		return New(cfg.GRPC.Addr, logger.With("component", "grpc"), w.Running)
	}),

	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.Hook{
			OnStart: s.Start,
			OnStop: func(ctx context.Context) error {
				s.Stop(ctx)
				return nil
			},
		})
	}),
)
