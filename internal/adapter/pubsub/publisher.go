package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/fx"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/metrics"
	"github.com/webitel/im-gamification-service/internal/worker"
)

var Module = fx.Module("pubsub",
	fx.Provide(
		ProvideBroker,
		ProvideExporter,
	),
)

// Broker bundles the publisher and subscriber built for broker.driver.
// Both are nil when the driver is none.
type Broker struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

func (b *Broker) Close() error {
	var errs []error
	if b.Publisher != nil {
		errs = append(errs, b.Publisher.Close())
	}
	// gochannel is both ends; closing twice is a no-op there.
	if b.Subscriber != nil {
		errs = append(errs, b.Subscriber.Close())
	}
	return errors.Join(errs...)
}

func ProvideBroker(lc fx.Lifecycle, cfg *config.Config, logger watermill.LoggerAdapter) (*Broker, error) {
	b, err := NewBroker(cfg.Broker, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return b.Close() },
	})
	return b, nil
}

func NewBroker(cfg config.BrokerConfig, logger watermill.LoggerAdapter) (*Broker, error) {
	switch cfg.Driver {
	case "none":
		return &Broker{}, nil
	case "amqp":
		pub, err := amqp.NewPublisher(amqpConfig(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(amqpConfig(cfg), logger)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("amqp subscriber: %w", err)
		}
		return &Broker{Publisher: pub, Subscriber: sub}, nil
	default:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Broker{Publisher: ch, Subscriber: ch}, nil
	}
}

// amqpConfig routes every topic through one durable topic exchange; the
// topic is the routing key.
func amqpConfig(cfg config.BrokerConfig) amqp.Config {
	routingKey := func(topic string) string { return topic }
	return amqp.Config{
		Connection: amqp.ConnectionConfig{AmqpURI: cfg.URL},
		Marshaler:  amqp.DefaultMarshaler{},
		Exchange: amqp.ExchangeConfig{
			GenerateName: func(string) string { return cfg.Exchange },
			Type:         "topic",
			Durable:      true,
		},
		Queue: amqp.QueueConfig{
			GenerateName: amqp.GenerateQueueNameConstant(cfg.IngressQueue),
			Durable:      true,
		},
		QueueBind: amqp.QueueBindConfig{GenerateRoutingKey: routingKey},
		Publish:   amqp.PublishConfig{GenerateRoutingKey: routingKey},
		Consume: amqp.ConsumeConfig{
			Qos: amqp.QosConfig{PrefetchCount: 16},
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
}

// ProvideExporter returns nil when no broker is configured, which the worker
// treats as log-only.
func ProvideExporter(cfg *config.Config, b *Broker, logger *slog.Logger, m *metrics.Metrics) worker.Exporter {
	if b.Publisher == nil {
		logger.Info("EXPORT_DISABLED", "driver", cfg.Broker.Driver)
		return nil
	}
	return NewExporter(b.Publisher, BreakerConfig{
		Failures: cfg.Broker.BreakerFailures,
		Timeout:  cfg.Broker.BreakerTimeout,
	}, logger.With("component", "exporter"), m)
}
