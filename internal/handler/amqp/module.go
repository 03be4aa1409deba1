package amqp

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/adapter/pubsub"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		NewMessageHandler,
		NewWatermillRouter,
	),

	fx.Invoke(func(lc fx.Lifecycle, h *MessageHandler, router *message.Router, broker *pubsub.Broker, cfg *config.Config) error {
		enabled, err := h.RegisterHandlers(router, broker, cfg.Broker)
		if err != nil || !enabled {
			return err
		}

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := router.Run(context.Background()); err != nil {
						h.logger.Error("INGRESS_ROUTER_FAILED", "err", err)
					}
				}()
				select {
				case <-router.Running():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			OnStop: func(context.Context) error {
				return router.Close()
			},
		})
		return nil
	}),
)
