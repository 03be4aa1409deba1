package service

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/bus"
	"github.com/webitel/im-gamification-service/internal/store"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		// Domain services
		fx.Annotate(
			NewDeliveryService,
			fx.As(new(Deliverer)),
		),
		func(cfg *config.Config, catalog store.CatalogStore) CatalogResolver {
			return NewCatalogResolver(catalog, cfg.Notification.CacheSize)
		},
		NewScoringService,
		func(s *ScoringService) Scorer { return s },
		func(cfg *config.Config) NotificationConfig {
			return NotificationConfig{MinXP: cfg.Notification.MinXP, Locale: cfg.Notification.Locale}
		},
		NewNotificationService,
		func(s *NotificationService) Notifier { return s },
		fx.Annotate(
			func(r CatalogResolver) func() { return r.Purge },
			fx.ResultTags(`group:"catalog_reload"`),
		),
	),

	// [DECORATION_LAYER] Intercept the resolver to add cross-cutting concerns
	fx.Decorate(func(orig CatalogResolver, logger *slog.Logger) CatalogResolver {
		return &ResolverMiddleware{
			Next:   orig,
			Logger: logger,
		}
	}),

	fx.Invoke(func(lc fx.Lifecycle, b *bus.Bus, scoring *ScoringService, notifications *NotificationService) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				scoring.Attach(b)
				notifications.Attach(b)
				return nil
			},
			OnStop: func(context.Context) error {
				notifications.Detach(b)
				scoring.Detach(b)
				return nil
			},
		})
	}),
)
