package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/service"
	"github.com/webitel/im-gamification-service/internal/store"
	"github.com/webitel/im-gamification-service/internal/worker"
)

// PublishRequest is the ingress body of POST /api/v1/events.
type PublishRequest struct {
	Name       string         `json:"name" validate:"required"`
	Payload    map[string]any `json:"payload" validate:"required"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type PublishResponse struct {
	Name      event.Name `json:"name"`
	UserID    string     `json:"user_id"`
	Delivered bool       `json:"delivered"`
}

type StatsResponse struct {
	Worker      worker.Stats          `json:"worker"`
	Connections model.ConnectionStats `json:"connections"`
	Listeners   map[event.Name]int    `json:"listeners"`
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (rt *Router) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": rt.Jobs != nil && rt.Jobs.Stats().Running,
	})
}

// PublishEvent decodes a raw scorable event and publishes it on the bus.
// Scoring completes before the response is written.
func (rt *Router) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if apiErr := rt.decodeBody(w, r, &req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message)
		return
	}

	name := event.Name(req.Name)
	if !name.IsScorable() {
		respondError(w, http.StatusBadRequest, "UNKNOWN_EVENT", "event "+req.Name+" is not accepted from clients")
		return
	}

	ev, err := event.Decode(name, req.Payload, req.OccurredAt)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_EVENT", err.Error())
		return
	}

	delivered := rt.Publisher.Publish(r.Context(), ev)
	respondJSON(w, http.StatusAccepted, PublishResponse{
		Name:      ev.Name(),
		UserID:    ev.UserID(),
		Delivered: delivered,
	})
}

func (rt *Router) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.Scorer.UserStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		rt.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (rt *Router) AchievementProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := rt.Scorer.AchievementProgress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		rt.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": progress})
}

func (rt *Router) BadgeCatalog(w http.ResponseWriter, r *http.Request) {
	badges, err := rt.Scorer.BadgeCatalog(r.Context())
	if err != nil {
		rt.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": badges})
}

func (rt *Router) ListNotifications(w http.ResponseWriter, r *http.Request) {
	page, apiErr := rt.page(r)
	if apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message)
		return
	}
	items, err := rt.Notifications.ListNotifications(r.Context(), chi.URLParam(r, "userID"), page)
	if err != nil {
		rt.respondStoreError(w, err)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}
	respondJSON(w, http.StatusOK, listResponse[model.Notification]{Items: items, Limit: page.Limit, Offset: page.Offset})
}

// SendNotification persists and pushes an ad-hoc notification to one user.
func (rt *Router) SendNotification(w http.ResponseWriter, r *http.Request) {
	var in service.NotificationInput
	if apiErr := rt.decodeBodyOnly(w, r, &in); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message)
		return
	}
	in.UserID = chi.URLParam(r, "userID")

	n, err := rt.Notifier.SendNotification(r.Context(), in)
	if err != nil {
		rt.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, n)
}

func (rt *Router) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := rt.Notifications.MarkNotificationRead(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	if err != nil {
		rt.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (rt *Router) Broadcast(w http.ResponseWriter, r *http.Request) {
	var in service.BroadcastInput
	if apiErr := rt.decodeBody(w, r, &in); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message)
		return
	}
	respondJSON(w, http.StatusOK, rt.Notifier.Broadcast(r.Context(), in))
}

func (rt *Router) Stats(w http.ResponseWriter, _ *http.Request) {
	res := StatsResponse{
		Connections: rt.Notifier.Stats(),
		Listeners:   make(map[event.Name]int),
	}
	if rt.Jobs != nil {
		res.Worker = rt.Jobs.Stats()
	}
	if rt.Listeners != nil {
		for _, name := range event.All() {
			res.Listeners[name] = rt.Listeners.ListenerCount(name)
		}
	}
	respondJSON(w, http.StatusOK, res)
}

func (rt *Router) ListFailures(w http.ResponseWriter, r *http.Request) {
	page, apiErr := rt.page(r)
	if apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message)
		return
	}
	items, err := rt.Failures.ListFailures(r.Context(), page)
	if err != nil {
		rt.respondStoreError(w, err)
		return
	}
	if items == nil {
		items = []model.Failure{}
	}
	respondJSON(w, http.StatusOK, listResponse[model.Failure]{Items: items, Limit: page.Limit, Offset: page.Offset})
}

func (rt *Router) PendingJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := rt.Jobs.PendingJobs(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", err.Error())
		return
	}
	if jobs == nil {
		jobs = []worker.JobView{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": jobs})
}

func (rt *Router) ClearJobs(w http.ResponseWriter, r *http.Request) {
	if err := rt.Jobs.ClearQueue(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DrainJobs runs one batch now. A batch already in flight makes it a no-op.
func (rt *Router) DrainJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"processed": rt.Jobs.Drain(r.Context())})
}

// decodeBodyOnly decodes without validating; used when path params complete the struct.
func (rt *Router) decodeBodyOnly(w http.ResponseWriter, r *http.Request, dst any) *APIError {
	if err := newBodyDecoder(w, r).Decode(dst); err != nil {
		return &APIError{Code: "INVALID_JSON", Message: err.Error()}
	}
	return nil
}

func (rt *Router) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		rt.Logger.Error("HTTP_STORE_ERROR", "err", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
