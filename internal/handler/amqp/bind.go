package amqp

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
)

// ErrPoisonMessage marks messages that can never be processed. They are
// forwarded to the poison topic and acknowledged.
var ErrPoisonMessage = errors.New("amqp: poison message")

// DomainHandler defines the functional signature for ingress decoding.
type DomainHandler[T any] func(ctx context.Context, payload *T) (event.Event, error)

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to the bus, handling Panic Recovery, Decoding and Dispatch.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		// [PANIC_RECOVERY]
		// Safely handle runtime panics to keep the consumer alive.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
				h.reject(msg, fmt.Sprintf("panic: %v", r))
				err = nil // ACK: a panicking message would panic again.
			}
		}()

		// [DECODING]
		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.reject(msg, "decode: "+err.Error())
			return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
		}

		ev, err := fn(msg.Context(), payload)
		if err != nil {
			h.reject(msg, err.Error())
			return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
		}
		if ev == nil {
			return nil
		}

		// [LOCAL_DISPATCH]
		// Scoring, notifications and the worker all run before the ACK.
		if !h.publisher.Publish(msg.Context(), ev) {
			h.logger.Warn("INGRESS_NO_LISTENERS", "event", ev.Name(), "msg_id", msg.UUID)
		}
		return nil
	}
}

func (h *MessageHandler) reject(msg *message.Message, reason string) {
	h.logger.Warn("INGRESS_REJECTED", "msg_id", msg.UUID, "reason", reason)
	h.failures.Record(msg.Context(), model.Failure{
		Component: model.ComponentIngress,
		EventName: msg.Metadata.Get("event"),
		Reason:    reason,
		Payload:   map[string]any{"msg_id": msg.UUID, "raw": string(msg.Payload)},
	})
}
