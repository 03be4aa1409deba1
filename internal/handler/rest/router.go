// Package rest exposes the pipeline over HTTP: event ingress, progress reads,
// notification management, operational stats and the live transports.
package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/bus"
	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/handler/lp"
	"github.com/webitel/im-gamification-service/internal/handler/ws"
	"github.com/webitel/im-gamification-service/internal/metrics"
	"github.com/webitel/im-gamification-service/internal/service"
	"github.com/webitel/im-gamification-service/internal/store"
	"github.com/webitel/im-gamification-service/internal/worker"
)

// JobQueue is the operational surface of the background worker.
type JobQueue interface {
	Stats() worker.Stats
	PendingJobs(ctx context.Context) ([]worker.JobView, error)
	ClearQueue(ctx context.Context) error
	Drain(ctx context.Context) int
}

// ListenerCounter reports bus registrations per event name.
type ListenerCounter interface {
	ListenerCount(name event.Name) int
}

var (
	_ JobQueue        = (*worker.Worker)(nil)
	_ ListenerCounter = (*bus.Bus)(nil)
)

// Deps groups everything the router serves.
type Deps struct {
	Config        *config.Config
	Logger        *slog.Logger
	Publisher     bus.Publisher
	Listeners     ListenerCounter
	Scorer        service.Scorer
	Notifier      service.Notifier
	Notifications store.NotificationStore
	Failures      store.FailureStore
	Jobs          JobQueue
	Metrics       *metrics.Metrics
	WS            *ws.WSHandler
	LP            *lp.LPHandler
}

type Router struct {
	Deps
	validate *validator.Validate
}

func NewRouter(d Deps) *Router {
	return &Router{
		Deps:     d,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handler configures all HTTP routes using the chi router.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(rt.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.Config.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", ws.UserIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", rt.Health)
	if rt.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(rt.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	if rt.WS != nil {
		r.Handle("/ws", rt.WS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// [INGRESS] per-IP budget on writes
		r.Group(func(r chi.Router) {
			if rt.Config.HTTP.RateLimit > 0 {
				r.Use(httprate.LimitByIP(rt.Config.HTTP.RateLimit, time.Minute))
			}
			r.Post("/events", rt.PublishEvent)
			r.Post("/broadcast", rt.Broadcast)
		})

		r.Get("/badges", rt.BadgeCatalog)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/stats", rt.UserStats)
			r.Get("/achievements", rt.AchievementProgress)
			r.Get("/notifications", rt.ListNotifications)
			r.Post("/notifications", rt.SendNotification)
			r.Post("/notifications/{id}/read", rt.MarkNotificationRead)
			if rt.LP != nil {
				r.Get("/poll", rt.LP.Poll)
			}
		})

		r.Get("/stats", rt.Stats)
		r.Get("/failures", rt.ListFailures)

		r.Route("/worker", func(r chi.Router) {
			r.Get("/jobs", rt.PendingJobs)
			r.Delete("/jobs", rt.ClearJobs)
			r.Post("/drain", rt.DrainJobs)
		})
	})

	return r
}

// requestLogger emits one debug line per request with latency and status.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("HTTP_REQUEST",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", chimiddleware.GetReqID(r.Context()),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
