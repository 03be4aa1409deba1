/*
Package bus provides the in-process typed publish/subscribe register of the pipeline.

Publish is synchronous: every listener registered for the event name at the
moment of the call runs on the caller's goroutine in registration order. Each
invocation is isolated, so an error or panic in one listener is recorded and
the remaining listeners still run. There is no buffering or replay.
*/
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/failure"
	"github.com/webitel/im-gamification-service/internal/metrics"
)

// Listener reacts to one published event.
type Listener func(ctx context.Context, ev event.Event) error

// Subscription identifies one registration. Registering the same Listener
// twice yields two subscriptions and two invocations per publish.
type Subscription struct {
	name event.Name
	id   uint64
}

func (s Subscription) Name() event.Name { return s.name }

type entry struct {
	id       uint64
	listener Listener
}

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) bool
}

var _ Publisher = (*Bus)(nil)

type Bus struct {
	// [CONCURRENCY_CONTROL]
	// Writers copy the slice so Publish can iterate a stable snapshot without holding the lock.
	mu        sync.RWMutex
	listeners map[event.Name][]entry
	seq       atomic.Uint64

	logger   *slog.Logger
	failures failure.Reporter
	metrics  *metrics.Metrics
}

func New(logger *slog.Logger, failures failure.Reporter, m *metrics.Metrics) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if failures == nil {
		failures = failure.Nop{}
	}
	return &Bus{
		listeners: make(map[event.Name][]entry),
		logger:    logger,
		failures:  failures,
		metrics:   m,
	}
}

// Subscribe registers fn for name. Listeners added while a Publish is running
// do not see that event.
func (b *Bus) Subscribe(name event.Name, fn Listener) Subscription {
	id := b.seq.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.listeners[name]
	next := make([]entry, len(current), len(current)+1)
	copy(next, current)
	b.listeners[name] = append(next, entry{id: id, listener: fn})

	return Subscription{name: name, id: id}
}

// Unsubscribe removes one registration. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.listeners[sub.name]
	next := make([]entry, 0, len(current))
	for _, e := range current {
		if e.id != sub.id {
			next = append(next, e)
		}
	}
	if len(next) == 0 {
		delete(b.listeners, sub.name)
		return
	}
	b.listeners[sub.name] = next
}

// ListenerCount returns the number of registrations for name.
func (b *Bus) ListenerCount(name event.Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Publish invokes every listener registered for ev.Name() and reports whether
// at least one existed. Listener failures never reach the caller.
func (b *Bus) Publish(ctx context.Context, ev event.Event) bool {
	b.mu.RLock()
	snapshot := b.listeners[ev.Name()]
	b.mu.RUnlock()

	b.metrics.EventPublished(string(ev.Name()), len(snapshot) > 0)
	if len(snapshot) == 0 {
		b.logger.Debug("EVENT_UNHANDLED", "event", ev.Name(), "user_id", ev.UserID())
		return false
	}

	for _, e := range snapshot {
		b.invoke(ctx, e, ev)
	}
	return true
}

func (b *Bus) invoke(ctx context.Context, e entry, ev event.Event) {
	// [PANIC_RECOVERY]
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("LISTENER_PANIC_RECOVERED",
				"event", ev.Name(),
				"listener_id", e.id,
				"err", r,
				"stack", string(debug.Stack()),
			)
			b.fail(ctx, ev, fmt.Sprintf("listener %d panicked: %v", e.id, r))
		}
	}()

	if err := e.listener(ctx, ev); err != nil {
		b.logger.Warn("LISTENER_FAILED", "event", ev.Name(), "listener_id", e.id, "err", err)
		b.fail(ctx, ev, err.Error())
	}
}

func (b *Bus) fail(ctx context.Context, ev event.Event, reason string) {
	b.metrics.ListenerError(string(ev.Name()))
	b.failures.Record(ctx, model.Failure{
		Component: model.ComponentBus,
		EventName: string(ev.Name()),
		UserID:    ev.UserID(),
		Reason:    reason,
		Payload:   ev.Payload(),
	})
}

// Listen subscribes a listener typed to one event variant. Events of other
// variants published under the same name are ignored.
func Listen[T event.Event](b *Bus, name event.Name, fn func(ctx context.Context, ev T) error) Subscription {
	return b.Subscribe(name, func(ctx context.Context, ev event.Event) error {
		typed, ok := ev.(T)
		if !ok {
			return nil
		}
		return fn(ctx, typed)
	})
}
