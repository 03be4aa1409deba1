package worker

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
)

func TestBadgerQueue_FIFO(t *testing.T) {
	q, err := OpenBadgerQueue("", slog.Default(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, NewJob(event.NewPostCreated("u1", id), 3)))
	}
	assert.Equal(t, 3, q.Len())

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	batch, err := q.PopBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].Event.(event.PostCreated).PostID)
	assert.Equal(t, "b", batch[1].Event.(event.PostCreated).PostID)
	assert.Equal(t, 3, batch[0].MaxRetries)
	assert.Equal(t, 1, q.Len())

	retry := batch[0]
	retry.RetryCount++
	require.NoError(t, q.Push(ctx, retry))

	batch, err = q.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "c", batch[0].Event.(event.PostCreated).PostID)
	assert.Equal(t, 1, batch[1].RetryCount)
	assert.Zero(t, q.Len())
}

func TestBadgerQueue_RoundTripsNumericFields(t *testing.T) {
	q, err := OpenBadgerQueue("", slog.Default(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	ctx := context.Background()
	require.NoError(t, q.Push(ctx, NewJob(event.NewXPGained("u1", 60, 180), 1)))

	batch, err := q.PopBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	xp := batch[0].Event.(event.XPGained)
	assert.Equal(t, 60, xp.XPGained)
	assert.Equal(t, 180, xp.TotalXP)
}

func TestBadgerQueue_ClearAndClose(t *testing.T) {
	q, err := OpenBadgerQueue("", slog.Default(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Push(ctx, NewJob(event.NewProfileUpdated("u1"), 0)))
	require.NoError(t, q.Clear(ctx))
	assert.Zero(t, q.Len())

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Push(ctx, NewJob(event.NewProfileUpdated("u1"), 0)), ErrQueueClosed)
}

func TestBadgerQueue_Durable(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	q, err := OpenBadgerQueue(dir, slog.Default(), nil)
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, NewJob(event.NewLikeGiven("u1", "p1"), 3)))
	require.NoError(t, q.Push(ctx, NewJob(event.NewLikeGiven("u1", "p2"), 3)))
	require.NoError(t, q.Close())

	q, err = OpenBadgerQueue(dir, slog.Default(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	assert.Equal(t, 2, q.Len())

	require.NoError(t, q.Push(ctx, NewJob(event.NewLikeGiven("u1", "p3"), 3)))
	batch, err := q.PopBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "p1", batch[0].Event.(event.LikeGiven).PostID)
	assert.Equal(t, "p3", batch[2].Event.(event.LikeGiven).PostID)
}

func TestBadgerQueue_UndecodableEntryIsReported(t *testing.T) {
	rep := &captureReporter{}
	q, err := OpenBadgerQueue("", slog.Default(), rep)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	ctx := context.Background()
	require.NoError(t, q.Push(ctx, NewJob(event.NewLikeGiven("u1", "p1"), 3)))

	// a corrupt entry written behind the queue's back
	next, err := q.seq.Next()
	require.NoError(t, err)
	require.NoError(t, q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(jobKey(next), []byte("{not json"))
	}))
	q.length.Add(1)

	batch, err := q.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "p1", batch[0].Event.(event.LikeGiven).PostID)
	assert.Zero(t, q.Len())

	failures := rep.all()
	require.Len(t, failures, 1)
	assert.Equal(t, model.ComponentWorker, failures[0].Component)
	assert.Equal(t, fmt.Sprintf("%x", jobKey(next)), failures[0].Payload["key"])
	assert.Equal(t, "{not json", failures[0].Payload["raw"])
}
