package pubsub

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/event"
)

func TestExporter_PublishesEnvelope(t *testing.T) {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ch.Close() })

	msgs, err := ch.Subscribe(context.Background(), Topic(event.NameBadgeEarned))
	require.NoError(t, err)

	exp := NewExporter(ch, BreakerConfig{}, slog.Default(), nil)
	require.NoError(t, exp.Export(context.Background(), event.NewBadgeEarned("u1", "first-like")))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, "badge_earned", msg.Metadata.Get("event"))
		assert.Equal(t, "u1", msg.Metadata.Get("user_id"))

		var env Envelope
		require.NoError(t, json.Unmarshal(msg.Payload, &env))
		assert.Equal(t, event.NameBadgeEarned, env.Name)
		assert.Equal(t, "u1", env.UserID)
		assert.Equal(t, "first-like", env.Payload["badgeId"])
		assert.NotEmpty(t, env.ID)
	case <-time.After(time.Second):
		t.Fatal("message was not published")
	}
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(string, ...*message.Message) error {
	p.calls++
	return errors.New("connection refused")
}

func (p *failingPublisher) Close() error { return nil }

func TestExporter_BreakerOpens(t *testing.T) {
	pub := &failingPublisher{}
	exp := NewExporter(pub, BreakerConfig{Failures: 2, Timeout: time.Minute}, slog.Default(), nil)

	ctx := context.Background()
	ev := event.NewLikeGiven("u1", "p1")
	assert.Error(t, exp.Export(ctx, ev))
	assert.Error(t, exp.Export(ctx, ev))
	assert.Equal(t, "open", exp.State())

	assert.Error(t, exp.Export(ctx, ev))
	assert.Equal(t, 2, pub.calls, "open breaker must short-circuit")
}

func TestNewBroker_None(t *testing.T) {
	b, err := NewBroker(config.BrokerConfig{Driver: "none"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Nil(t, b.Publisher)
	assert.NoError(t, b.Close())

	cfg := &config.Config{Broker: config.BrokerConfig{Driver: "none"}}
	assert.Nil(t, ProvideExporter(cfg, b, slog.Default(), nil))
}

func TestNewBroker_GoChannel(t *testing.T) {
	b, err := NewBroker(config.BrokerConfig{Driver: "gochannel"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.NotNil(t, b.Publisher)
	assert.Same(t, b.Publisher, b.Subscriber)
	assert.NoError(t, b.Close())
}
