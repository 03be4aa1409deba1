package worker

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/webitel/im-gamification-service/internal/domain/event"
)

// Job wraps one bus event for batched, retryable background processing.
type Job struct {
	ID         string
	Event      event.Event
	EnqueuedAt time.Time
	RetryCount int
	MaxRetries int
}

func NewJob(ev event.Event, maxRetries int) Job {
	return Job{
		ID:         uuid.NewString(),
		Event:      ev,
		EnqueuedAt: time.Now().UTC(),
		MaxRetries: maxRetries,
	}
}

// CanRetry reports whether another attempt is allowed after a failure.
func (j Job) CanRetry() bool { return j.RetryCount < j.MaxRetries }

// Attempts is the number of times the job has been handed to a handler.
func (j Job) Attempts() int { return j.RetryCount + 1 }

// JobView is the introspection and storage shape of a Job.
type JobView struct {
	ID         string         `json:"id"`
	EventName  event.Name     `json:"event_name"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

func (j Job) View() JobView {
	return JobView{
		ID:         j.ID,
		EventName:  j.Event.Name(),
		Payload:    j.Event.Payload(),
		OccurredAt: j.Event.OccurredAt(),
		EnqueuedAt: j.EnqueuedAt,
		RetryCount: j.RetryCount,
		MaxRetries: j.MaxRetries,
	}
}

func marshalJob(j Job) ([]byte, error) {
	return json.Marshal(j.View())
}

func unmarshalJob(data []byte) (Job, error) {
	var v JobView
	if err := json.Unmarshal(data, &v); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	ev, err := event.Decode(v.EventName, v.Payload, v.OccurredAt)
	if err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", v.ID, err)
	}
	return Job{
		ID:         v.ID,
		Event:      ev,
		EnqueuedAt: v.EnqueuedAt,
		RetryCount: v.RetryCount,
		MaxRetries: v.MaxRetries,
	}, nil
}
