// Package storetest is a conformance suite shared by every store.Store implementation.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("CounterMonotonic", func(t *testing.T) { testCounterMonotonic(t, newStore(t)) })
	t.Run("CounterConcurrent", func(t *testing.T) { testCounterConcurrent(t, newStore(t)) })
	t.Run("Activities", func(t *testing.T) { testActivities(t, newStore(t)) })
	t.Run("AddXP", func(t *testing.T) { testAddXP(t, newStore(t)) })
	t.Run("AwardBadgeOnce", func(t *testing.T) { testAwardBadgeOnce(t, newStore(t)) })
	t.Run("AwardBadgeConcurrent", func(t *testing.T) { testAwardBadgeConcurrent(t, newStore(t)) })
	t.Run("CompleteAchievement", func(t *testing.T) { testCompleteAchievement(t, newStore(t)) })
	t.Run("Catalog", func(t *testing.T) { testCatalog(t, newStore(t)) })
	t.Run("CatalogReseed", func(t *testing.T) { testCatalogReseed(t, newStore(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newStore(t)) })
	t.Run("Failures", func(t *testing.T) { testFailures(t, newStore(t)) })
}

func testCounterMonotonic(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		c, err := s.IncrementCounter(ctx, "u1", "like_given")
		require.NoError(t, err)
		assert.Equal(t, i, c.Count)
	}
	_, err := s.IncrementCounter(ctx, "u1", "post_created")
	require.NoError(t, err)

	counters, err := s.GetCounters(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, counters, 2)
	assert.Equal(t, "like_given", counters[0].EventName)
	assert.Equal(t, 5, counters[0].Count)

	_, err = s.IncrementCounter(ctx, "", "like_given")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func testCounterConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementCounter(ctx, "u1", "like_given")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counters, err := s.GetCounters(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, n, counters[0].Count)
}

func testActivities(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)
	for i := range 3 {
		_, err := s.AppendActivity(ctx, model.Activity{
			UserID:    "u1",
			EventName: "like_given",
			EventData: map[string]string{"postId": "p1"},
			Points:    2,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	list, err := s.ListActivities(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))
	assert.Equal(t, "p1", list[0].EventData["postId"])
	assert.NotEmpty(t, list[0].ID)

	_, err = s.AppendActivity(ctx, model.Activity{UserID: "u1", Points: -1})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func testAddXP(t *testing.T, s store.Store) {
	ctx := context.Background()

	lvl, err := s.GetUserLevel(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, lvl.Level)
	assert.Zero(t, lvl.XP)

	before, after, err := s.AddXP(ctx, "u1", 60)
	require.NoError(t, err)
	assert.Equal(t, 0, before.XP)
	assert.Equal(t, 60, after.XP)
	assert.Equal(t, 1, after.Level)

	before, after, err = s.AddXP(ctx, "u1", 50)
	require.NoError(t, err)
	assert.Equal(t, 60, before.XP)
	assert.Equal(t, 1, before.Level)
	assert.Equal(t, 110, after.XP)
	assert.Equal(t, 2, after.Level)

	lvl, err = s.GetUserLevel(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 110, lvl.XP)
	assert.Equal(t, 2, lvl.Level)
}

func testAwardBadgeOnce(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetUserBadge(ctx, "u1", "first-like")
	assert.ErrorIs(t, err, store.ErrNotFound)

	first := time.Now().UTC().Truncate(time.Second)
	ub, awarded, err := s.AwardBadge(ctx, "u1", "first-like", 1, first)
	require.NoError(t, err)
	assert.True(t, awarded)
	assert.True(t, ub.IsCompleted)
	require.NotNil(t, ub.EarnedAt)
	assert.True(t, first.Equal(*ub.EarnedAt))

	ub, awarded, err = s.AwardBadge(ctx, "u1", "first-like", 1, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, awarded)
	require.NotNil(t, ub.EarnedAt)
	assert.True(t, first.Equal(*ub.EarnedAt), "earned_at must not move")

	badges, err := s.ListUserBadges(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, badges, 1)
}

func testAwardBadgeConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		awarded int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.AwardBadge(ctx, "u1", "b1", 1, time.Now())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				awarded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, awarded)
}

func testCompleteAchievement(t *testing.T, s store.Store) {
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	ua, ok, err := s.CompleteAchievement(ctx, "u1", "streak-3", at)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "streak-3", ua.AchievementID)

	_, ok, err = s.CompleteAchievement(ctx, "u1", "streak-3", at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := s.ListUserAchievements(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, at.Equal(list[0].CompletedAt))
}

func testCatalog(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, b := range []model.Badge{
		{ID: "legend", Name: "Legend", Rarity: model.RarityLegendary, Points: 10, IsActive: true},
		{ID: "rare-high", Name: "Rare high", Rarity: model.RarityRare, Points: 50, IsActive: true},
		{ID: "rare-low", Name: "Rare low", Rarity: model.RarityRare, Points: 20, IsActive: true},
		{ID: "common", Name: "Common", Rarity: model.RarityCommon, Points: 100, IsActive: true},
		{ID: "retired", Name: "Retired", Rarity: model.RarityCommon, Points: 1, IsActive: false},
	} {
		_, err := s.UpsertBadge(ctx, b)
		require.NoError(t, err)
	}

	active, err := s.ListBadges(ctx, true)
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, b := range active {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"common", "rare-low", "rare-high", "legend"}, ids)

	all, err := s.ListBadges(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	b, err := s.GetBadge(ctx, "legend")
	require.NoError(t, err)
	assert.Equal(t, model.RarityLegendary, b.Rarity)

	_, err = s.GetBadge(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpsertAchievement(ctx, model.Achievement{ID: "a1", Name: "A1", EventName: "like_given", TargetValue: 10, BadgeID: "common", IsActive: true})
	require.NoError(t, err)
	_, err = s.UpsertAchievement(ctx, model.Achievement{ID: "a2", Name: "A2", EventName: "like_given", TargetValue: 1, BadgeID: "legend", IsActive: true})
	require.NoError(t, err)
	_, err = s.UpsertAchievement(ctx, model.Achievement{ID: "a3", Name: "A3", EventName: "like_given", TargetValue: 1, IsActive: false})
	require.NoError(t, err)
	_, err = s.UpsertAchievement(ctx, model.Achievement{ID: "a4", Name: "A4", EventName: "post_created", TargetValue: 1, IsActive: true})
	require.NoError(t, err)

	rules, err := s.ListAchievements(ctx, "like_given")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "a2", rules[0].ID)

	everything, err := s.ListAllAchievements(ctx)
	require.NoError(t, err)
	assert.Len(t, everything, 4)

	_, err = s.UpsertAchievement(ctx, model.Achievement{ID: "bad", EventName: "like_given"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func testNotifications(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	var ids []string
	for i := range 5 {
		n, err := s.CreateNotification(ctx, model.Notification{
			UserID:    "u1",
			Type:      model.NotificationBadgeEarned,
			Title:     "t",
			Message:   "m",
			Data:      map[string]any{"badgeId": "b1"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, n.ID)
		ids = append(ids, n.ID)
	}
	_, err := s.CreateNotification(ctx, model.Notification{UserID: "u2", Type: model.NotificationSystem})
	require.NoError(t, err)

	page, err := s.ListNotifications(ctx, "u1", model.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)
	assert.Equal(t, "b1", page[0].Data["badgeId"])

	n, err := s.MarkNotificationRead(ctx, "u1", ids[0])
	require.NoError(t, err)
	assert.True(t, n.Read)

	_, err = s.MarkNotificationRead(ctx, "u2", ids[0])
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testFailures(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.RecordFailure(ctx, model.Failure{
		Component: model.ComponentWorker,
		EventName: "like_given",
		UserID:    "u1",
		JobID:     "j1",
		Attempts:  4,
		Reason:    "boom",
	}))

	list, err := s.ListFailures(ctx, model.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.ComponentWorker, list[0].Component)
	assert.Equal(t, 4, list[0].Attempts)
	assert.NotEmpty(t, list[0].ID)
}

func testCatalogReseed(t *testing.T, s store.Store) {
	ctx := context.Background()
	full := config.DefaultCatalog()
	_, _, err := store.SeedCatalog(ctx, s, full)
	require.NoError(t, err)

	rules, err := s.ListAchievements(ctx, "like_given")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	// drop every like_given rule and the first-like badge
	trimmed := full
	trimmed.Achievements = nil
	for _, ac := range full.Achievements {
		if ac.Event != "like_given" {
			trimmed.Achievements = append(trimmed.Achievements, ac)
		}
	}
	trimmed.Badges = nil
	for _, bc := range full.Badges {
		if bc.ID != "first-like" {
			trimmed.Badges = append(trimmed.Badges, bc)
		}
	}
	_, _, err = store.SeedCatalog(ctx, s, trimmed)
	require.NoError(t, err)

	rules, err = s.ListAchievements(ctx, "like_given")
	require.NoError(t, err)
	assert.Empty(t, rules)

	b, err := s.GetBadge(ctx, "first-like")
	require.NoError(t, err)
	assert.False(t, b.IsActive)

	rules, err = s.ListAchievements(ctx, "post_created")
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	// restoring the config reactivates
	_, _, err = store.SeedCatalog(ctx, s, full)
	require.NoError(t, err)
	rules, err = s.ListAchievements(ctx, "like_given")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
	b, err = s.GetBadge(ctx, "first-like")
	require.NoError(t, err)
	assert.True(t, b.IsActive)
}
