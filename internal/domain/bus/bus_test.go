package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
)

type captureReporter struct {
	mu       sync.Mutex
	failures []model.Failure
}

func (c *captureReporter) Record(_ context.Context, f model.Failure) {
	c.mu.Lock()
	c.failures = append(c.failures, f)
	c.mu.Unlock()
}

func newBus() (*Bus, *captureReporter) {
	rep := &captureReporter{}
	return New(slog.Default(), rep, nil), rep
}

func TestPublish_NoListeners(t *testing.T) {
	b, _ := newBus()
	assert.False(t, b.Publish(context.Background(), event.NewLikeGiven("u1", "p1")))
}

func TestPublish_RegistrationOrder(t *testing.T) {
	b, _ := newBus()
	var order []int
	for i := range 5 {
		b.Subscribe(event.NameLikeGiven, func(context.Context, event.Event) error {
			order = append(order, i)
			return nil
		})
	}

	assert.True(t, b.Publish(context.Background(), event.NewLikeGiven("u1", "p1")))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPublish_IsolatesFailures(t *testing.T) {
	b, rep := newBus()
	var ran []string

	b.Subscribe(event.NameLikeGiven, func(context.Context, event.Event) error {
		ran = append(ran, "err")
		return errors.New("boom")
	})
	b.Subscribe(event.NameLikeGiven, func(context.Context, event.Event) error {
		ran = append(ran, "panic")
		panic("kaboom")
	})
	b.Subscribe(event.NameLikeGiven, func(context.Context, event.Event) error {
		ran = append(ran, "ok")
		return nil
	})

	assert.True(t, b.Publish(context.Background(), event.NewLikeGiven("u1", "p1")))
	assert.Equal(t, []string{"err", "panic", "ok"}, ran)

	require.Len(t, rep.failures, 2)
	assert.Equal(t, model.ComponentBus, rep.failures[0].Component)
	assert.Equal(t, "like_given", rep.failures[0].EventName)
	assert.Equal(t, "u1", rep.failures[1].UserID)
}

func TestSubscribe_TwiceInvokesTwice(t *testing.T) {
	b, _ := newBus()
	calls := 0
	fn := func(context.Context, event.Event) error { calls++; return nil }

	b.Subscribe(event.NamePostCreated, fn)
	b.Subscribe(event.NamePostCreated, fn)
	b.Publish(context.Background(), event.NewPostCreated("u1", "p1"))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, b.ListenerCount(event.NamePostCreated))
}

func TestUnsubscribe(t *testing.T) {
	b, _ := newBus()
	var got []string
	first := b.Subscribe(event.NamePostCreated, func(context.Context, event.Event) error {
		got = append(got, "first")
		return nil
	})
	b.Subscribe(event.NamePostCreated, func(context.Context, event.Event) error {
		got = append(got, "second")
		return nil
	})

	b.Unsubscribe(first)
	b.Unsubscribe(first)
	b.Publish(context.Background(), event.NewPostCreated("u1", "p1"))

	assert.Equal(t, []string{"second"}, got)
	assert.Equal(t, 1, b.ListenerCount(event.NamePostCreated))
}

func TestLateSubscriberMissesEvent(t *testing.T) {
	b, _ := newBus()
	b.Subscribe(event.NameLikeGiven, func(context.Context, event.Event) error { return nil })
	b.Publish(context.Background(), event.NewLikeGiven("u1", "p1"))

	late := 0
	b.Subscribe(event.NameLikeGiven, func(context.Context, event.Event) error { late++; return nil })
	assert.Zero(t, late)
}

func TestPublish_ReentrantSubscribe(t *testing.T) {
	b, _ := newBus()
	added := 0
	b.Subscribe(event.NameLikeGiven, func(context.Context, event.Event) error {
		b.Subscribe(event.NameLikeGiven, func(context.Context, event.Event) error { added++; return nil })
		return nil
	})

	b.Publish(context.Background(), event.NewLikeGiven("u1", "p1"))
	assert.Zero(t, added, "listener added during publish must not see the event")
	assert.Equal(t, 2, b.ListenerCount(event.NameLikeGiven))
}

func TestManyListeners(t *testing.T) {
	b, _ := newBus()
	const n = 10_000
	calls := 0
	for range n {
		b.Subscribe(event.NameProfileUpdated, func(context.Context, event.Event) error { calls++; return nil })
	}
	b.Publish(context.Background(), event.NewProfileUpdated("u1"))
	assert.Equal(t, n, calls)
}

func TestListen_Typed(t *testing.T) {
	b, _ := newBus()
	var streak int
	Listen(b, event.NameLoginStreak, func(_ context.Context, ev event.LoginStreak) error {
		streak = ev.StreakDays
		return nil
	})

	b.Publish(context.Background(), event.NewLoginStreak("u1", 7))
	assert.Equal(t, 7, streak)
}
