package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/metrics"
	"github.com/webitel/im-gamification-service/internal/worker"
)

const TopicPrefix = "gamification.v1."

var _ worker.Exporter = (*Exporter)(nil)

// Topic returns the broker topic an event name is exported on.
func Topic(name event.Name) string { return TopicPrefix + string(name) }

// Envelope is the exported wire shape of an event.
type Envelope struct {
	ID         string         `json:"id"`
	Name       event.Name     `json:"name"`
	UserID     string         `json:"user_id"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type BreakerConfig struct {
	// consecutive failures that open the breaker
	Failures uint32
	Timeout  time.Duration
}

// Exporter publishes events to the external broker through a circuit breaker.
type Exporter struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewExporter(pub message.Publisher, cfg BreakerConfig, logger *slog.Logger, m *metrics.Metrics) *Exporter {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	e := &Exporter{publisher: pub, logger: logger, metrics: m}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "event-export",
		Timeout: cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("BREAKER_STATE_CHANGED", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return e
}

func (e *Exporter) Export(ctx context.Context, ev event.Event) error {
	if ev == nil {
		return errors.New("exporter: cannot publish nil event")
	}

	payload, err := json.Marshal(Envelope{
		ID:         watermill.NewUUID(),
		Name:       ev.Name(),
		UserID:     ev.UserID(),
		Payload:    ev.Payload(),
		OccurredAt: ev.OccurredAt(),
	})
	if err != nil {
		return fmt.Errorf("exporter: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event", string(ev.Name()))
	msg.Metadata.Set("user_id", ev.UserID())
	msg.SetContext(ctx)

	topic := Topic(ev.Name())
	_, err = e.breaker.Execute(func() (interface{}, error) {
		return nil, e.publisher.Publish(topic, msg)
	})
	switch {
	case err == nil:
		e.metrics.Exported("published")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		e.metrics.Exported("rejected")
	default:
		e.metrics.Exported("failed")
	}
	return fmt.Errorf("exporter: publish to %s: %w", topic, err)
}

// State reports the breaker state for introspection.
func (e *Exporter) State() string {
	return e.breaker.State().String()
}
