package amqp

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/adapter/pubsub"
	"github.com/webitel/im-gamification-service/internal/domain/bus"
	"github.com/webitel/im-gamification-service/internal/failure"
)

const (
	IngressHandlerName = "ON_INGRESS_EVENT"
	PoisonTopicSuffix  = ".poison"
)

type MessageHandler struct {
	publisher bus.Publisher
	logger    *slog.Logger
	failures  failure.Reporter
}

func NewMessageHandler(publisher bus.Publisher, logger *slog.Logger, failures failure.Reporter) *MessageHandler {
	return &MessageHandler{
		publisher: publisher,
		logger:    logger.With("component", "ingress"),
		failures:  failures,
	}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
}

// [REGISTRATION_PIPELINE]
// RegisterHandlers wires the ingress consumer. It reports false when ingress
// is disabled or the broker has no subscriber.
func (h *MessageHandler) RegisterHandlers(router *message.Router, broker *pubsub.Broker, cfg config.BrokerConfig) (bool, error) {
	if !cfg.IngressEnable || broker == nil || broker.Subscriber == nil {
		h.logger.Info("INGRESS_DISABLED", "driver", cfg.Driver)
		return false, nil
	}

	poisonTopic := cfg.IngressTopic + PoisonTopicSuffix
	poison, err := middleware.PoisonQueueWithFilter(broker.Publisher, poisonTopic, func(err error) bool {
		return errors.Is(err, ErrPoisonMessage)
	})
	if err != nil {
		return false, fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	router.AddConsumerHandler(IngressHandlerName, cfg.IngressTopic, broker.Subscriber, Bind(h, h.OnEventV1)).AddMiddleware(
		TraceIDMiddleware,
		LoggingMiddleware(h.logger),
		NewRetryMiddleware(h.logger).Middleware,
		poison,
		middleware.NewThrottle(100, time.Second).Middleware,
		middleware.Timeout(time.Second*30),
	)

	h.logger.Info("INGRESS_PIPELINE_READY", "topic", cfg.IngressTopic, "poison_topic", poisonTopic)
	return true, nil
}
