package cmd

import (
	"log/slog"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/webitel/im-gamification-service/config"
	grpcsrv "github.com/webitel/im-gamification-service/infra/server/grpc"
	"github.com/webitel/im-gamification-service/internal/adapter/pubsub"
	"github.com/webitel/im-gamification-service/internal/domain/bus"
	"github.com/webitel/im-gamification-service/internal/domain/registry"
	"github.com/webitel/im-gamification-service/internal/failure"
	amqpdi "github.com/webitel/im-gamification-service/internal/handler/amqp"
	"github.com/webitel/im-gamification-service/internal/handler/rest"
	"github.com/webitel/im-gamification-service/internal/metrics"
	"github.com/webitel/im-gamification-service/internal/service"
	storedi "github.com/webitel/im-gamification-service/internal/store/di"
	"github.com/webitel/im-gamification-service/internal/worker"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideTracerProvider,
		),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			fl := &fxevent.SlogLogger{Logger: l.With("component", "fx")}
			fl.UseLogLevel(slog.LevelDebug)
			return fl
		}),
		// force construction so the global tracer provider is set
		fx.Invoke(func(*sdktrace.TracerProvider) {}),

		metrics.Module,
		storedi.Module,
		failure.Module,
		bus.Module,
		// the worker subscribes before scoring so raw events queue ahead of derived ones
		worker.Module,
		pubsub.Module,
		registry.Module,
		service.Module,
		rest.Module,
		grpcsrv.Module,
		amqpdi.Module,
	)
}
