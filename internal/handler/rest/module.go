package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"go.uber.org/fx"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/bus"
	"github.com/webitel/im-gamification-service/internal/handler/lp"
	"github.com/webitel/im-gamification-service/internal/handler/ws"
	"github.com/webitel/im-gamification-service/internal/metrics"
	"github.com/webitel/im-gamification-service/internal/service"
	"github.com/webitel/im-gamification-service/internal/store"
	"github.com/webitel/im-gamification-service/internal/worker"
)

type RouterParams struct {
	fx.In

	Config        *config.Config
	Logger        *slog.Logger
	Bus           *bus.Bus
	Scorer        service.Scorer
	Notifier      service.Notifier
	Notifications store.NotificationStore
	Failures      store.FailureStore
	Worker        *worker.Worker
	Metrics       *metrics.Metrics
	WS            *ws.WSHandler
	LP            *lp.LPHandler
}

func ProvideRouter(p RouterParams) *Router {
	return NewRouter(Deps{
		Config:        p.Config,
		Logger:        p.Logger.With("component", "http"),
		Publisher:     p.Bus,
		Listeners:     p.Bus,
		Scorer:        p.Scorer,
		Notifier:      p.Notifier,
		Notifications: p.Notifications,
		Failures:      p.Failures,
		Jobs:          p.Worker,
		Metrics:       p.Metrics,
		WS:            p.WS,
		LP:            p.LP,
	})
}

func NewServer(cfg *config.Config, rt *Router) *http.Server {
	return &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     rt.Handler(),
		ReadTimeout: cfg.HTTP.ReadTimeout,
		// no WriteTimeout: websocket and long-poll responses are long-lived
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
}

var Module = fx.Module("http-handler",
	fx.Provide(
		ws.NewWSHandler,
		lp.NewLPHandler,
		ProvideRouter,
		NewServer,
	),

	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, srv *http.Server, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				ln, err := net.Listen("tcp", srv.Addr)
				if err != nil {
					return fmt.Errorf("http listen %s: %w", srv.Addr, err)
				}
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("HTTP_SERVER_FAILED", "err", err)
					}
				}()
				logger.Info("HTTP_SERVER_STARTED", "addr", ln.Addr().String())
				return nil
			},
			OnStop: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(ctx)
			},
		})
	}),
)
