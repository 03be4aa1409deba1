package registry

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/metrics"
)

var Module = fx.Module("registry",
	fx.Provide(
		// [CLEAN_INJECTION] Configure Hub using Functional Options
		func(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Hub {
			return NewHub(logger.With("component", "registry"), m,
				WithHeartbeatInterval(cfg.Registry.HeartbeatInterval),
				WithIdleTimeout(cfg.Registry.IdleTimeout),
				WithSendTimeout(cfg.Registry.SendTimeout),
			)
		},
		func(h *Hub) Hubber { return h },
		NewCommandRouter,
	),
	fx.Invoke(func(lc fx.Lifecycle, h *Hub) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				h.Start(ctx)
				return nil
			},
			OnStop: func(context.Context) error {
				h.Shutdown()
				return nil
			},
		})
	}),
)
