package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/metrics"
)

var ErrNotConnected = errors.New("registry: user not connected")

// Hubber defines the gateway for live channel bookkeeping and push.
type Hubber interface {
	Add(userID string, ch Channel)
	Remove(userID string) bool
	Detach(userID string, ch Channel) bool
	Touch(userID string) bool
	Push(ctx context.Context, userID string, data []byte) error
	Reply(ctx context.Context, userID string, ch Channel, data []byte) error
	IsConnected(userID string) bool
	UserIDs() []string
	Stats() model.ConnectionStats
}

var _ Hubber = (*Hub)(nil)

type Hub struct {
	// entries stores map[string]*Entry. Optimized for [READ_HEAVY] push lookups.
	entries sync.Map
	count   atomic.Int64

	config  hubConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// [LIFECYCLE_CONTROL] heartbeat janitor
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		config: hubConfig{
			heartbeatInterval: DefaultHeartbeatInterval,
			idleTimeout:       DefaultIdleTimeout,
			sendTimeout:       DefaultSendTimeout,
		},
		logger:  logger,
		metrics: m,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add registers ch for userID. Last writer wins: a previous channel is closed.
func (h *Hub) Add(userID string, ch Channel) {
	prev, loaded := h.entries.Swap(userID, newEntry(userID, ch))
	if loaded {
		old := prev.(*Entry)
		if old.Channel != ch {
			_ = old.Channel.Close()
		}
		h.logger.Debug("CONNECTION_REPLACED", "user_id", userID)
	} else {
		h.count.Add(1)
	}
	h.metrics.Connections(int(h.count.Load()))
	h.logger.Info("CONNECTION_ADDED", "user_id", userID, "connected", h.count.Load())
}

// Remove drops the user's entry and closes its channel.
func (h *Hub) Remove(userID string) bool {
	v, ok := h.entries.LoadAndDelete(userID)
	if !ok {
		return false
	}
	h.count.Add(-1)
	_ = v.(*Entry).Channel.Close()
	h.metrics.Connections(int(h.count.Load()))
	h.logger.Info("CONNECTION_REMOVED", "user_id", userID)
	return true
}

// Detach removes the entry only while it still holds ch, so a transport
// closing a replaced channel never unregisters its successor.
func (h *Hub) Detach(userID string, ch Channel) bool {
	v, ok := h.entries.Load(userID)
	if !ok || v.(*Entry).Channel != ch {
		return false
	}
	return h.evict(v.(*Entry), "detached")
}

func (h *Hub) evict(e *Entry, reason string) bool {
	if !h.entries.CompareAndDelete(e.UserID, e) {
		return false
	}
	h.count.Add(-1)
	_ = e.Channel.Close()
	h.metrics.Connections(int(h.count.Load()))
	h.logger.Debug("CONNECTION_EVICTED", "user_id", e.UserID, "reason", reason)
	return true
}

// Touch refreshes lastSeen and reports whether the user is connected.
func (h *Hub) Touch(userID string) bool {
	v, ok := h.entries.Load(userID)
	if ok {
		v.(*Entry).touch()
	}
	return ok
}

// Push sends data to the user's channel. A send failure evicts the entry.
func (h *Hub) Push(ctx context.Context, userID string, data []byte) error {
	v, ok := h.entries.Load(userID)
	if !ok {
		return ErrNotConnected
	}
	e := v.(*Entry)

	sendCtx, cancel := context.WithTimeout(ctx, h.config.sendTimeout)
	defer cancel()

	if err := e.Channel.Send(sendCtx, data); err != nil {
		h.evict(e, "send_failed")
		return fmt.Errorf("push to %s: %w", userID, err)
	}
	return nil
}

// Reply sends data on ch itself, which need not be the user's current
// channel. A send failure evicts ch only while it is still registered.
func (h *Hub) Reply(ctx context.Context, userID string, ch Channel, data []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, h.config.sendTimeout)
	defer cancel()

	if err := ch.Send(sendCtx, data); err != nil {
		h.Detach(userID, ch)
		return fmt.Errorf("reply to %s: %w", userID, err)
	}
	return nil
}

func (h *Hub) IsConnected(userID string) bool {
	_, ok := h.entries.Load(userID)
	return ok
}

// UserIDs returns the connected users in lexical order.
func (h *Hub) UserIDs() []string {
	ids := make([]string, 0, h.count.Load())
	h.entries.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	slices.Sort(ids)
	return ids
}

func (h *Hub) Stats() model.ConnectionStats {
	ids := h.UserIDs()
	return model.ConnectionStats{Connected: len(ids), UserIDs: ids}
}

// Sweep evicts every entry idle for longer than the idle timeout and returns
// how many were removed.
func (h *Hub) Sweep() int {
	evicted := 0
	h.entries.Range(func(_, v any) bool {
		e := v.(*Entry)
		if e.IsIdle(h.config.idleTimeout) && h.evict(e, "idle") {
			evicted++
		}
		return true
	})
	if evicted > 0 {
		h.logger.Debug("HEARTBEAT_SWEEP", "evicted", evicted, "connected", h.count.Load())
	}
	return evicted
}

// Start launches the heartbeat janitor. It is a no-op when already running.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(h.config.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				h.Sweep()
			}
		}
	}(h.done)
}

// Stop halts the janitor and waits for it. It is idempotent.
func (h *Hub) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Shutdown stops the janitor and closes every channel.
func (h *Hub) Shutdown() {
	h.Stop()
	h.entries.Range(func(_, v any) bool {
		h.evict(v.(*Entry), "shutdown")
		return true
	})
}
