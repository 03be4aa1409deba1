package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/store"
	"github.com/webitel/im-gamification-service/internal/store/memstore"
)

func TestSeedCatalog(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	badges, achievements, err := store.SeedCatalog(ctx, s, config.CatalogConfig{
		Badges: []config.BadgeConfig{
			{Name: "Night Owl", Rarity: "Rare", Points: 15},
			{ID: "retired", Name: "Retired", Disabled: true},
		},
		Achievements: []config.AchievementConfig{
			{Name: "Owl Hours", Event: "post_created", Target: 3, Badge: "night-owl"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, badges)
	assert.Equal(t, 1, achievements)

	b, err := s.GetBadge(ctx, "night-owl")
	require.NoError(t, err)
	assert.Equal(t, model.RarityRare, b.Rarity)
	assert.True(t, b.IsActive)

	active, err := s.ListBadges(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	rules, err := s.ListAchievements(ctx, "post_created")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "owl-hours", rules[0].ID)
	assert.Equal(t, "night-owl", rules[0].BadgeID)
}

func TestSeedCatalog_BadRarity(t *testing.T) {
	_, _, err := store.SeedCatalog(context.Background(), memstore.New(), config.CatalogConfig{
		Badges: []config.BadgeConfig{{Name: "X", Rarity: "mythic"}},
	})
	assert.Error(t, err)
}

func TestSeedCatalog_Default(t *testing.T) {
	s := memstore.New()
	_, n, err := store.SeedCatalog(context.Background(), s, config.DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, len(config.DefaultCatalog().Achievements), n)
}
