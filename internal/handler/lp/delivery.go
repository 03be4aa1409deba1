package lp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	lpmarshaller "github.com/webitel/im-gamification-service/internal/handler/marshaller/lp"
	"github.com/webitel/im-gamification-service/internal/service"
)

const (
	DefaultPollTimeout = 30 * time.Second
	maxBatch           = 16
)

type LPHandler struct {
	deliverer   service.Deliverer
	pollTimeout time.Duration
}

func NewLPHandler(deliverer service.Deliverer) *LPHandler {
	return &LPHandler{
		deliverer:   deliverer,
		pollTimeout: DefaultPollTimeout,
	}
}

// WithTimeout returns a copy holding requests for at most d.
func (h *LPHandler) WithTimeout(d time.Duration) *LPHandler {
	cp := *h
	if d > 0 {
		cp.pollTimeout = d
	}
	return &cp
}

// Poll handles the long-polling request.
// It holds the connection until a frame arrives or timeout occurs.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	// 1. Extract Identity (validated by the gateway).
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	// 2. Temporary Subscription.
	// The connector lives only for the duration of this HTTP request.
	conn, err := h.deliverer.Subscribe(r.Context(), userID)
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}
	defer h.deliverer.Unsubscribe(userID, conn)

	timer := time.NewTimer(h.pollTimeout)
	defer timer.Stop()

	var frames [][]byte

	// 3. Wait for data or timeout.
	select {
	case <-r.Context().Done():
		// Client disconnected.
		return

	case <-conn.Done():
		// Replaced by a newer channel for the same user.
		w.WriteHeader(http.StatusNoContent)
		return

	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
		return

	case f := <-conn.Recv():
		frames = append(frames, f)

		// Drain what is already buffered to reduce round trips.
	drainLoop:
		for len(frames) < maxBatch {
			select {
			case next := <-conn.Recv():
				frames = append(frames, next)
			default:
				break drainLoop
			}
		}
	}

	// 4. Final transmission.
	data, err := lpmarshaller.MarshallFrames(frames)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
