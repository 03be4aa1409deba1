package worker

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("worker: queue closed")

// Queue is a FIFO of jobs. Push appends at the tail, PopBatch removes from the head.
type Queue interface {
	Push(ctx context.Context, job Job) error
	// PopBatch removes and returns up to n jobs in FIFO order.
	PopBatch(ctx context.Context, n int) ([]Job, error)
	Len() int
	// Pending returns the queued jobs without removing them.
	Pending(ctx context.Context) ([]Job, error)
	Clear(ctx context.Context) error
	Close() error
}

var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is the process-local FIFO. Its content is lost on restart.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   []Job
	closed bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *MemoryQueue) PopBatch(_ context.Context, n int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	if n > len(q.jobs) {
		n = len(q.jobs)
	}
	if n <= 0 {
		return nil, nil
	}

	batch := make([]Job, n)
	copy(batch, q.jobs[:n])
	// [RECLAIM] drop references held by the backing array
	clear(q.jobs[:n])
	q.jobs = q.jobs[n:]
	if len(q.jobs) == 0 {
		q.jobs = nil
	}
	return batch, nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *MemoryQueue) Pending(_ context.Context) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.jobs))
	copy(out, q.jobs)
	return out, nil
}

func (q *MemoryQueue) Clear(_ context.Context) error {
	q.mu.Lock()
	q.jobs = nil
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
