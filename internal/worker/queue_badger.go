package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/failure"
)

const (
	jobPrefix    = "job/"
	sequenceKey  = "meta/job-seq"
	seqBandwidth = 256
)

var _ Queue = (*BadgerQueue)(nil)

// BadgerQueue is a durable FIFO. Keys are job/<big-endian sequence>, so
// iteration order equals enqueue order across restarts.
type BadgerQueue struct {
	db       *badger.DB
	seq      *badger.Sequence
	logger   *slog.Logger
	failures failure.Reporter

	// popMu serializes head removal so two drains never claim the same key.
	popMu  sync.Mutex
	length atomic.Int64
	closed atomic.Bool
}

// OpenBadgerQueue opens the queue at path, or in memory when path is empty.
// Entries that no longer decode are dropped and reported to failures.
func OpenBadgerQueue(path string, logger *slog.Logger, failures failure.Reporter) (*BadgerQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if failures == nil {
		failures = failure.Nop{}
	}

	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger queue: %w", err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger queue sequence: %w", err)
	}

	q := &BadgerQueue{db: db, seq: seq, logger: logger, failures: failures}
	n, err := q.count()
	if err != nil {
		_ = seq.Release()
		_ = db.Close()
		return nil, err
	}
	q.length.Store(int64(n))
	if n > 0 {
		logger.Info("JOB_QUEUE_RECOVERED", "pending", n, "path", path)
	}
	return q, nil
}

func jobKey(seq uint64) []byte {
	key := make([]byte, len(jobPrefix)+8)
	copy(key, jobPrefix)
	binary.BigEndian.PutUint64(key[len(jobPrefix):], seq)
	return key
}

func (q *BadgerQueue) count() (int, error) {
	n := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(jobPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (q *BadgerQueue) Push(_ context.Context, job Job) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	data, err := marshalJob(job)
	if err != nil {
		return err
	}
	next, err := q.seq.Next()
	if err != nil {
		return fmt.Errorf("badger queue next sequence: %w", err)
	}
	if err := q.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(jobKey(next), data))
	}); err != nil {
		return fmt.Errorf("badger queue push: %w", err)
	}
	q.length.Add(1)
	return nil
}

func (q *BadgerQueue) PopBatch(ctx context.Context, n int) ([]Job, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	if n <= 0 {
		return nil, nil
	}

	q.popMu.Lock()
	defer q.popMu.Unlock()

	var (
		batch   []Job
		removed int
		corrupt []model.Failure
	)
	err := q.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var keys [][]byte

		prefix := []byte(jobPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(keys) < n; it.Next() {
			if err := ctx.Err(); err != nil {
				it.Close()
				return err
			}
			item := it.Item()
			keys = append(keys, item.KeyCopy(nil))

			var (
				job Job
				raw []byte
			)
			err := item.Value(func(val []byte) error {
				var derr error
				job, derr = unmarshalJob(val)
				if derr != nil {
					raw = append(raw, val...)
				}
				return derr
			})
			if err != nil {
				// [POISON_PILL] undecodable entries are removed, never retried
				key := fmt.Sprintf("%x", item.Key())
				q.logger.Error("JOB_DECODE_FAILED", "err", err, "key", key)
				corrupt = append(corrupt, model.Failure{
					Component: model.ComponentWorker,
					Reason:    "decode: " + err.Error(),
					Payload:   map[string]any{"key": key, "raw": string(raw)},
				})
				continue
			}
			batch = append(batch, job)
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger queue pop: %w", err)
	}
	q.length.Add(int64(-removed))
	for _, f := range corrupt {
		q.failures.Record(ctx, f)
	}
	return batch, nil
}

func (q *BadgerQueue) Len() int {
	return int(q.length.Load())
}

func (q *BadgerQueue) Pending(ctx context.Context) ([]Job, error) {
	var out []Job
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(jobPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				job, err := unmarshalJob(val)
				if err != nil {
					return err
				}
				out = append(out, job)
				return nil
			})
			if err != nil {
				q.logger.Warn("JOB_DECODE_FAILED", "err", err)
			}
		}
		return nil
	})
	return out, err
}

func (q *BadgerQueue) Clear(_ context.Context) error {
	q.popMu.Lock()
	defer q.popMu.Unlock()

	if err := q.db.DropPrefix([]byte(jobPrefix)); err != nil {
		return fmt.Errorf("badger queue clear: %w", err)
	}
	q.length.Store(0)
	return nil
}

func (q *BadgerQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(q.seq.Release(), q.db.Close())
}
