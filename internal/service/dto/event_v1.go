package dto

import (
	"fmt"
	"time"

	"github.com/webitel/im-gamification-service/internal/domain/event"
)

// [BROKER_V1] INGRESS PAYLOAD PUBLISHED BY UPSTREAM SERVICES
type EventV1 struct {
	Name       string         `json:"name"`
	Payload    map[string]any `json:"payload"`
	OccurredAt string         `json:"occurred_at,omitempty"`
}

// ToDomain decodes the envelope into a scorable event. Derived reward
// events are never accepted from outside the pipeline.
func (d *EventV1) ToDomain() (event.Event, error) {
	name := event.Name(d.Name)
	if !name.IsScorable() {
		return nil, fmt.Errorf("%w: %q is not an ingress event", event.ErrUnknownEvent, d.Name)
	}

	var at time.Time
	if d.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339Nano, d.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("%w: occurred_at: %v", event.ErrInvalidField, err)
		}
		at = t
	}
	return event.Decode(name, d.Payload, at)
}
