package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-gamification-service/internal/domain/bus"
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

func (c *captureReporter) all() []model.Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Failure(nil), c.failures...)
}

func newWorker(t *testing.T, h Handler, cfg Config) (*Worker, *bus.Bus, *captureReporter) {
	t.Helper()
	rep := &captureReporter{}
	b := bus.New(slog.Default(), rep, nil)
	w := New(b, NewMemoryQueue(), h, cfg, slog.Default(), rep, nil)
	t.Cleanup(func() { _ = w.Close() })
	return w, b, rep
}

func okHandler() HandlerFunc {
	return func(context.Context, Job) error { return nil }
}

func TestPublishEnqueuesWithoutProcessing(t *testing.T) {
	var calls atomic.Int32
	w, b, _ := newWorker(t, HandlerFunc(func(context.Context, Job) error {
		calls.Add(1)
		return nil
	}), Config{MaxRetries: 3})

	assert.True(t, b.Publish(context.Background(), event.NewLikeGiven("u1", "p1")))
	assert.Equal(t, 1, w.Stats().Pending)
	assert.Zero(t, calls.Load())

	jobs, err := w.PendingJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, event.NameLikeGiven, jobs[0].EventName)
	assert.Zero(t, jobs[0].RetryCount)
	assert.Equal(t, 3, jobs[0].MaxRetries)
}

func TestSubscribesToEveryEventName(t *testing.T) {
	_, b, _ := newWorker(t, okHandler(), Config{})
	for _, name := range event.All() {
		assert.Equal(t, 1, b.ListenerCount(name), name)
	}
}

func TestDrain_BatchesOfTen(t *testing.T) {
	w, b, _ := newWorker(t, okHandler(), Config{BatchSize: 10})
	for i := range 25 {
		b.Publish(context.Background(), event.NewPostCreated("u1", fmt.Sprintf("p%d", i)))
	}

	ctx := context.Background()
	assert.Equal(t, 10, w.Drain(ctx))
	assert.Equal(t, 10, w.Drain(ctx))
	assert.Equal(t, 5, w.Drain(ctx))
	assert.Equal(t, 0, w.Drain(ctx))

	st := w.Stats()
	assert.Equal(t, int64(25), st.Processed)
	assert.Equal(t, int64(3), st.Batches)
	assert.Zero(t, st.Pending)
}

func TestDrain_FIFOBatchMembership(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	w, b, _ := newWorker(t, HandlerFunc(func(_ context.Context, j Job) error {
		mu.Lock()
		seen = append(seen, j.Event.(event.PostCreated).PostID)
		mu.Unlock()
		return nil
	}), Config{BatchSize: 2})

	for _, id := range []string{"a", "b", "c"} {
		b.Publish(context.Background(), event.NewPostCreated("u1", id))
	}

	w.Drain(context.Background())
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
	w.Drain(context.Background())
	assert.Equal(t, "c", seen[2])
}

func TestRetryBound(t *testing.T) {
	const maxRetries = 3
	var attempts atomic.Int32
	w, b, rep := newWorker(t, HandlerFunc(func(context.Context, Job) error {
		attempts.Add(1)
		return errors.New("always fails")
	}), Config{MaxRetries: maxRetries})

	b.Publish(context.Background(), event.NewLikeGiven("u1", "p1"))

	for range 10 {
		w.Drain(context.Background())
	}

	assert.Equal(t, int32(maxRetries+1), attempts.Load())
	assert.Zero(t, w.Stats().Pending)
	assert.Equal(t, int64(maxRetries), w.Stats().Retried)
	assert.Equal(t, int64(1), w.Stats().Dropped)

	failures := rep.all()
	require.Len(t, failures, 1)
	assert.Equal(t, model.ComponentWorker, failures[0].Component)
	assert.Equal(t, maxRetries+1, failures[0].Attempts)
	assert.Equal(t, "like_given", failures[0].EventName)
}

func TestRetryGoesToTail(t *testing.T) {
	var (
		mu     sync.Mutex
		order  []string
		failed bool
	)
	w, b, _ := newWorker(t, HandlerFunc(func(_ context.Context, j Job) error {
		id := j.Event.(event.PostCreated).PostID
		mu.Lock()
		defer mu.Unlock()
		order = append(order, id)
		if id == "a" && !failed {
			failed = true
			return errors.New("transient")
		}
		return nil
	}), Config{BatchSize: 1, MaxRetries: 1})

	b.Publish(context.Background(), event.NewPostCreated("u1", "a"))
	b.Publish(context.Background(), event.NewPostCreated("u1", "b"))

	for range 3 {
		w.Drain(context.Background())
	}
	assert.Equal(t, []string{"a", "b", "a"}, order)
}

func TestPanicIsAFailure(t *testing.T) {
	w, b, rep := newWorker(t, HandlerFunc(func(context.Context, Job) error {
		panic("nil map")
	}), Config{MaxRetries: 0})

	b.Publish(context.Background(), event.NewProfileUpdated("u1"))
	assert.Equal(t, 1, w.Drain(context.Background()))
	assert.Len(t, rep.all(), 1)
}

func TestDrain_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 16)
	w, b, _ := newWorker(t, HandlerFunc(func(context.Context, Job) error {
		started <- struct{}{}
		<-release
		return nil
	}), Config{BatchSize: 1})

	b.Publish(context.Background(), event.NewLikeGiven("u1", "p1"))
	b.Publish(context.Background(), event.NewLikeGiven("u1", "p2"))

	done := make(chan int)
	go func() { done <- w.Drain(context.Background()) }()
	<-started

	assert.True(t, w.Stats().Processing)
	assert.Equal(t, 0, w.Drain(context.Background()), "overlapping drain must be a no-op")
	assert.Equal(t, 1, w.Stats().Pending, "no additional job may be taken")

	close(release)
	assert.Equal(t, 1, <-done)
	assert.False(t, w.Stats().Processing)
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	w, b, _ := newWorker(t, HandlerFunc(func(context.Context, Job) error {
		calls.Add(1)
		return nil
	}), Config{Interval: 10 * time.Millisecond})

	w.Start(context.Background())
	w.Start(context.Background())
	assert.True(t, w.Running())

	b.Publish(context.Background(), event.NewLikeGiven("u1", "p1"))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	w.Stop()
	w.Stop()
	assert.False(t, w.Running())

	b.Publish(context.Background(), event.NewLikeGiven("u1", "p2"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, w.Stats().Pending)
}

func TestClearQueue(t *testing.T) {
	w, b, _ := newWorker(t, okHandler(), Config{})
	for range 5 {
		b.Publish(context.Background(), event.NewProfileUpdated("u1"))
	}
	require.NoError(t, w.ClearQueue(context.Background()))
	assert.Zero(t, w.Stats().Pending)
	assert.Zero(t, w.Drain(context.Background()))
}

func TestClose_Detaches(t *testing.T) {
	w, b, _ := newWorker(t, okHandler(), Config{})
	require.NoError(t, w.Close())
	assert.Zero(t, b.ListenerCount(event.NameLikeGiven))
	assert.False(t, b.Publish(context.Background(), event.NewLikeGiven("u1", "p1")))
}

type recordingExporter struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (r *recordingExporter) Export(_ context.Context, ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func TestEventHandler_Exports(t *testing.T) {
	exp := &recordingExporter{}
	w, b, _ := newWorker(t, NewEventHandler(slog.Default(), exp), Config{})

	b.Publish(context.Background(), event.NewBadgeEarned("u1", "first-like"))
	b.Publish(context.Background(), event.NewLoginStreak("u1", 3))
	w.Drain(context.Background())

	require.Len(t, exp.events, 2)
}

func TestEventHandler_ExportFailureRetries(t *testing.T) {
	exp := &recordingExporter{err: errors.New("broker down")}
	w, b, _ := newWorker(t, NewEventHandler(slog.Default(), exp), Config{MaxRetries: 2})

	b.Publish(context.Background(), event.NewLikeGiven("u1", "p1"))
	w.Drain(context.Background())
	assert.Equal(t, int64(1), w.Stats().Retried)

	exp.mu.Lock()
	exp.err = nil
	exp.mu.Unlock()

	w.Drain(context.Background())
	assert.Len(t, exp.events, 1)
	assert.Equal(t, int64(1), w.Stats().Processed)
}
