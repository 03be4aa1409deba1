// Package failure turns swallowed errors into structured, queryable records.
package failure

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/metrics"
	"github.com/webitel/im-gamification-service/internal/store"
)

// Reporter accepts failures from best-effort paths. Record never fails.
type Reporter interface {
	Record(ctx context.Context, f model.Failure)
}

var _ Reporter = (*Recorder)(nil)

type Recorder struct {
	store   store.FailureStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRecorder(logger *slog.Logger, fs store.FailureStore, m *metrics.Metrics) *Recorder {
	return &Recorder{store: fs, logger: logger, metrics: m}
}

func (r *Recorder) Record(ctx context.Context, f model.Failure) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.OccurredAt.IsZero() {
		f.OccurredAt = time.Now().UTC()
	}

	r.logger.Error("FAILURE_RECORDED",
		"failure_id", f.ID,
		"component", f.Component,
		"event", f.EventName,
		"user_id", f.UserID,
		"job_id", f.JobID,
		"attempts", f.Attempts,
		"reason", f.Reason,
	)
	r.metrics.Failure(string(f.Component))

	if r.store == nil {
		return
	}
	// [DETACHED] persistence must survive a cancelled request context
	if err := r.store.RecordFailure(context.WithoutCancel(ctx), f); err != nil {
		r.logger.Error("FAILURE_PERSIST_FAILED", "err", err, "failure_id", f.ID)
	}
}

// Nop discards failures. Useful for tests that do not assert on them.
type Nop struct{}

func (Nop) Record(context.Context, model.Failure) {}
