package amqp

import (
	"context"

	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/service/dto"
)

// [ON_EVENT_V1]
// Converts an upstream envelope into a typed scorable event.
func (h *MessageHandler) OnEventV1(_ context.Context, raw *dto.EventV1) (event.Event, error) {
	return raw.ToDomain()
}
