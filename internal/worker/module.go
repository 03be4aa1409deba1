package worker

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/bus"
	"github.com/webitel/im-gamification-service/internal/failure"
	"github.com/webitel/im-gamification-service/internal/metrics"
)

var Module = fx.Module("worker",
	fx.Provide(
		ProvideQueue,
		fx.Annotate(
			NewEventHandler,
			fx.As(new(Handler)),
		),
		ProvideWorker,
	),
	fx.Invoke(func(lc fx.Lifecycle, w *Worker) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				w.Start(ctx)
				return nil
			},
			OnStop: func(context.Context) error {
				return w.Close()
			},
		})
	}),
)

// ProvideQueue selects the queue backend by queue.driver.
func ProvideQueue(cfg *config.Config, logger *slog.Logger, failures failure.Reporter) (Queue, error) {
	if cfg.Queue.Driver == "badger" {
		return OpenBadgerQueue(cfg.Queue.Path, logger, failures)
	}
	return NewMemoryQueue(), nil
}

func ProvideWorker(cfg *config.Config, b *bus.Bus, q Queue, h Handler, logger *slog.Logger, failures failure.Reporter, m *metrics.Metrics) *Worker {
	return New(b, q, h, Config{
		Interval:   cfg.Worker.Interval,
		BatchSize:  cfg.Worker.BatchSize,
		MaxRetries: cfg.Worker.MaxRetries,
	}, logger.With("component", "worker"), failures, m)
}
