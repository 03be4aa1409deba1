package storedi

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/store"
	"github.com/webitel/im-gamification-service/internal/store/gormstore"
	"github.com/webitel/im-gamification-service/internal/store/memstore"
)

var Module = fx.Module("store",
	fx.Provide(
		ProvideStore,
		func(s store.Store) store.ProgressStore { return s },
		func(s store.Store) store.CatalogStore { return s },
		func(s store.Store) store.NotificationStore { return s },
		func(s store.Store) store.FailureStore { return s },
	),
	fx.Invoke(SeedOnStart),
)

// ProvideStore selects the backend by database.driver.
func ProvideStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Database.Driver {
	case "sqlite":
		s, err = gormstore.Open(gormstore.DriverSQLite, cfg.Database.DSN, logger)
	case "postgres":
		s, err = gormstore.Open(gormstore.DriverPostgres, cfg.Database.DSN, logger)
	default:
		s = memstore.New()
		if cfg.Service.Environment != "development" {
			logger.Warn("STORE_EPHEMERAL", "driver", cfg.Database.Driver, "env", cfg.Service.Environment)
		}
	}
	if err != nil {
		return nil, err
	}

	logger.Info("STORE_READY", "driver", cfg.Database.Driver)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return s.Close() },
	})
	return s, nil
}

type SeedParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Catalog   store.CatalogStore
	Logger    *slog.Logger
	// OnReload runs after every successful re-seed.
	OnReload []func() `group:"catalog_reload"`
}

// SeedOnStart loads the catalog and, when a config file is in use, re-seeds it on change.
func SeedOnStart(p SeedParams) {
	cfg, s, logger := p.Config, p.Catalog, p.Logger
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			badges, achievements, err := store.SeedCatalog(ctx, s, cfg.Catalog)
			if err != nil {
				return err
			}
			logger.Info("CATALOG_SEEDED", "badges", badges, "achievements", achievements)

			if cfg.File == "" {
				return nil
			}
			return config.WatchCatalog(cfg.File, logger, func(updated config.CatalogConfig) {
				if _, _, err := store.SeedCatalog(context.Background(), s, updated); err != nil {
					logger.Error("CATALOG_RESEED_FAILED", "err", err)
					return
				}
				for _, fn := range p.OnReload {
					fn()
				}
			})
		},
	})
}
