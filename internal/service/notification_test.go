package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/domain/registry"
	"github.com/webitel/im-gamification-service/internal/store"
)

type fakeChannel struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
}

func (c *fakeChannel) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func (c *fakeChannel) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func TestNotification_PushesToConnectedUser(t *testing.T) {
	h := newHarness(t, config.DefaultCatalog())
	ch := &fakeChannel{}
	h.hub.Add("u1", ch)

	h.bus.Publish(context.Background(), event.NewLikeGiven("u1", "p1"))

	frames := ch.sent()
	require.Len(t, frames, 1)

	var frame struct {
		Type    registry.FrameType `json:"type"`
		Payload model.Notification `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frames[0], &frame))
	assert.Equal(t, registry.FrameNotification, frame.Type)
	assert.Equal(t, model.NotificationBadgeEarned, frame.Payload.Type)
	assert.Equal(t, "Badge earned!", frame.Payload.Title)
	assert.Equal(t, "You earned the First Like badge.", frame.Payload.Message)
	assert.Equal(t, "common", frame.Payload.Data["rarity"])
	assert.NotEmpty(t, frame.Payload.ID)
}

func TestNotification_StoredWhenOffline(t *testing.T) {
	h := newHarness(t, config.DefaultCatalog())
	ctx := context.Background()

	n, err := h.notifications.SendNotification(ctx, NotificationInput{UserID: "u1", Title: "hello"})
	require.NoError(t, err)
	assert.Equal(t, model.NotificationSystem, n.Type)

	list, err := h.store.ListNotifications(ctx, "u1", model.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, n.ID, list[0].ID)
}

func TestNotification_DeadChannelEvictedNotRolledBack(t *testing.T) {
	h := newHarness(t, config.DefaultCatalog())
	ctx := context.Background()
	h.hub.Add("u1", &fakeChannel{sendErr: errors.New("connection reset")})

	n, err := h.notifications.SendNotification(ctx, NotificationInput{UserID: "u1", Title: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.False(t, h.hub.IsConnected("u1"))

	list, err := h.store.ListNotifications(ctx, "u1", model.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotification_Validation(t *testing.T) {
	h := newHarness(t, config.DefaultCatalog())
	_, err := h.notifications.SendNotification(context.Background(), NotificationInput{Title: "no user"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestNotification_XPThreshold(t *testing.T) {
	h := newHarness(t, config.DefaultCatalog())
	ctx := context.Background()

	h.bus.Publish(ctx, event.NewXPGained("u1", 49, 49))
	list, err := h.store.ListNotifications(ctx, "u1", model.Page{})
	require.NoError(t, err)
	assert.Empty(t, list)

	h.bus.Publish(ctx, event.NewXPGained("u1", 50, 99))
	list, err = h.store.ListNotifications(ctx, "u1", model.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationXPGained, list[0].Type)
	assert.Equal(t, "+50 XP", list[0].Title)
	assert.Equal(t, "You now have 99 XP in total.", list[0].Message)
}

func TestNotification_Broadcast(t *testing.T) {
	h := newHarness(t, config.DefaultCatalog())
	live := []*fakeChannel{{}, {}}
	h.hub.Add("a", live[0])
	h.hub.Add("b", live[1])
	h.hub.Add("dead", &fakeChannel{sendErr: errors.New("gone")})

	res := h.notifications.Broadcast(context.Background(), BroadcastInput{Title: "Maintenance", Message: "at noon"})
	assert.Equal(t, 3, res.Recipients)
	assert.Equal(t, 3, res.Stored)
	assert.Equal(t, 2, res.Delivered)
	assert.Empty(t, res.Failed)

	for _, ch := range live {
		assert.Len(t, ch.sent(), 1)
	}
	assert.Equal(t, 2, h.notifications.Stats().Connected)
}

func TestNotification_StreakAndLocale(t *testing.T) {
	h := newHarness(t, config.CatalogConfig{})
	h.notifications.cfg.Locale = "uk"
	ctx := context.Background()

	h.bus.Publish(ctx, event.NewStreakMilestone("u1", 7))

	list, err := h.store.ListNotifications(ctx, "u1", model.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationStreakMilestone, list[0].Type)
	assert.Equal(t, "Серія 7 днів!", list[0].Title)
	assert.Equal(t, 7, list[0].Data["streakDays"])
}

func TestRender(t *testing.T) {
	title, msg := render("en", model.NotificationLevelUp, 5)
	assert.Equal(t, "Level up!", title)
	assert.Equal(t, "You reached level 5.", msg)

	title, msg = render("fr", model.NotificationStreakMilestone, 30)
	assert.Equal(t, "30-day streak!", title)
	assert.Equal(t, "You kept your login streak for 30 days.", msg)

	title, _ = render("en", model.NotificationSystem)
	assert.Equal(t, "system", title)
}

func TestCatalogResolver(t *testing.T) {
	h := newHarness(t, config.DefaultCatalog())
	r := NewCatalogResolver(h.store, 4)
	ctx := context.Background()

	b, err := r.ResolveBadge(ctx, "generous")
	require.NoError(t, err)
	assert.Equal(t, model.RarityRare, b.Rarity)

	_, err = r.ResolveBadge(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	a, err := r.ResolveAchievement(ctx, "climber")
	require.NoError(t, err)
	assert.Empty(t, a.BadgeID)

	_, err = h.store.UpsertBadge(ctx, model.Badge{ID: "generous", Name: "Very Generous", Rarity: model.RarityEpic, IsActive: true})
	require.NoError(t, err)
	b, _ = r.ResolveBadge(ctx, "generous")
	assert.Equal(t, "Generous", b.Name, "served from cache")

	r.Purge()
	b, _ = r.ResolveBadge(ctx, "generous")
	assert.Equal(t, "Very Generous", b.Name)
}
