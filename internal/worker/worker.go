/*
Package worker decouples event arrival from background processing.

Every bus event is wrapped into a Job and appended to a FIFO queue without
blocking the publisher. A ticker drains at most BatchSize jobs per tick and
processes them concurrently. Failed jobs are re-appended to the tail until
MaxRetries is exhausted, then dropped and recorded as permanent failures.

Side-effect ownership: this path exports events to the external broker and
writes the audit log. Counters, XP, activities and badges belong to the
scoring path only.
*/
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/webitel/im-gamification-service/internal/domain/bus"
	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/failure"
	"github.com/webitel/im-gamification-service/internal/metrics"
)

const (
	DefaultInterval   = time.Second
	DefaultBatchSize  = 10
	DefaultMaxRetries = 3
)

type Config struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Handler processes one job. A returned error schedules a retry.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// Stats is a point-in-time view of the worker.
type Stats struct {
	Pending    int   `json:"pending"`
	Processing bool  `json:"processing"`
	Running    bool  `json:"running"`
	Processed  int64 `json:"processed"`
	Retried    int64 `json:"retried"`
	Dropped    int64 `json:"dropped"`
	Batches    int64 `json:"batches"`
}

type Worker struct {
	cfg      Config
	queue    Queue
	handler  Handler
	bus      *bus.Bus
	subs     []bus.Subscription
	logger   *slog.Logger
	failures failure.Reporter
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	// [SINGLE_FLIGHT] at most one batch is in flight
	processing atomic.Bool

	// [LIFECYCLE_CONTROL]
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	processed atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64
	batches   atomic.Int64
}

// New subscribes the worker to every event name on b. Enqueueing starts
// immediately; draining starts with Start.
func New(b *bus.Bus, q Queue, h Handler, cfg Config, logger *slog.Logger, failures failure.Reporter, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if failures == nil {
		failures = failure.Nop{}
	}
	w := &Worker{
		cfg:      cfg.withDefaults(),
		queue:    q,
		handler:  h,
		bus:      b,
		logger:   logger,
		failures: failures,
		metrics:  m,
		tracer:   otel.Tracer("github.com/webitel/im-gamification-service/internal/worker"),
	}
	for _, name := range event.All() {
		w.subs = append(w.subs, b.Subscribe(name, w.enqueue))
	}
	return w
}

func (w *Worker) enqueue(ctx context.Context, ev event.Event) error {
	job := NewJob(ev, w.cfg.MaxRetries)
	if err := w.queue.Push(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.Name(), err)
	}
	w.metrics.QueueDepth(w.queue.Len())
	return nil
}

// Start launches the drain ticker. Calling Start on a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(runCtx, w.done)
	w.logger.Info("WORKER_STARTED",
		"interval", w.cfg.Interval,
		"batch_size", w.cfg.BatchSize,
		"max_retries", w.cfg.MaxRetries,
	)
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Stop cancels the ticker and waits for the loop to exit. It is idempotent.
// An in-flight batch is allowed to settle.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("WORKER_STOPPED", "pending", w.queue.Len())
}

// Close stops the worker, detaches it from the bus and closes the queue.
func (w *Worker) Close() error {
	w.Stop()
	for _, sub := range w.subs {
		w.bus.Unsubscribe(sub)
	}
	w.subs = nil
	return w.queue.Close()
}

// Running reports whether the drain ticker is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Drain processes one batch and returns its size. It returns 0 without
// touching the queue when another drain is still in flight.
func (w *Worker) Drain(ctx context.Context) int {
	if !w.processing.CompareAndSwap(false, true) {
		w.logger.Debug("DRAIN_SKIPPED", "reason", "batch in flight")
		return 0
	}
	defer w.processing.Store(false)

	batch, err := w.queue.PopBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("QUEUE_POP_FAILED", "err", err)
		return 0
	}
	if len(batch) == 0 {
		return 0
	}

	start := time.Now()
	var g errgroup.Group
	for _, job := range batch {
		g.Go(func() error {
			w.process(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	w.batches.Add(1)
	w.metrics.BatchDuration(time.Since(start).Seconds())
	w.metrics.QueueDepth(w.queue.Len())
	w.logger.Debug("BATCH_DRAINED",
		"size", len(batch),
		"pending", w.queue.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return len(batch)
}

func (w *Worker) process(ctx context.Context, job Job) {
	ctx, span := w.tracer.Start(ctx, "worker.job", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("event.name", string(job.Event.Name())),
		attribute.Int("job.attempt", job.Attempts()),
	))
	defer span.End()

	err := w.safeHandle(ctx, job)
	if err == nil {
		w.processed.Add(1)
		w.metrics.Job("succeeded")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if job.CanRetry() {
		job.RetryCount++
		perr := w.queue.Push(ctx, job)
		if perr == nil {
			w.retried.Add(1)
			w.metrics.Job("retried")
			w.logger.Warn("JOB_RETRY_SCHEDULED",
				"job_id", job.ID,
				"event", job.Event.Name(),
				"retry", job.RetryCount,
				"max_retries", job.MaxRetries,
				"err", err,
			)
			return
		}
		err = fmt.Errorf("%w; requeue failed: %v", err, perr)
	}

	w.dropped.Add(1)
	w.metrics.Job("dropped")
	w.logger.Error("JOB_DROPPED",
		"job_id", job.ID,
		"event", job.Event.Name(),
		"user_id", job.Event.UserID(),
		"attempts", job.Attempts(),
		"err", err,
	)
	w.failures.Record(ctx, model.Failure{
		Component: model.ComponentWorker,
		EventName: string(job.Event.Name()),
		UserID:    job.Event.UserID(),
		JobID:     job.ID,
		Attempts:  job.Attempts(),
		Reason:    err.Error(),
		Payload:   job.Event.Payload(),
	})
}

func (w *Worker) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("JOB_PANIC_RECOVERED", "job_id", job.ID, "err", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return w.handler.Handle(ctx, job)
}

// ClearQueue removes every pending job.
func (w *Worker) ClearQueue(ctx context.Context) error {
	if err := w.queue.Clear(ctx); err != nil {
		return err
	}
	w.metrics.QueueDepth(0)
	return nil
}

// PendingJobs lists queued jobs in FIFO order without removing them.
func (w *Worker) PendingJobs(ctx context.Context) ([]JobView, error) {
	jobs, err := w.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.View())
	}
	return out, nil
}

func (w *Worker) Stats() Stats {
	return Stats{
		Pending:    w.queue.Len(),
		Processing: w.processing.Load(),
		Running:    w.Running(),
		Processed:  w.processed.Load(),
		Retried:    w.retried.Load(),
		Dropped:    w.dropped.Load(),
		Batches:    w.batches.Load(),
	}
}
