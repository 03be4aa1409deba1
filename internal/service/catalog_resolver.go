package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/store"
)

const catalogCacheTTL = 5 * time.Minute

// CatalogResolver looks up catalog rows for notification enrichment.
type CatalogResolver interface {
	ResolveBadge(ctx context.Context, badgeID string) (model.Badge, error)
	ResolveAchievement(ctx context.Context, achievementID string) (model.Achievement, error)
	// Purge drops cached rows, e.g. after the catalog is re-seeded.
	Purge()
}

type CachedCatalogResolver struct {
	catalog      store.CatalogStore
	badges       *expirable.LRU[string, model.Badge]
	achievements *expirable.LRU[string, model.Achievement]
}

// NewCatalogResolver returns a resolver with a TTL-bounded LRU in front of
// the catalog store. The TTL bounds staleness after a hot catalog reload.
func NewCatalogResolver(catalog store.CatalogStore, size int) *CachedCatalogResolver {
	if size <= 0 {
		size = 1024
	}
	return &CachedCatalogResolver{
		catalog:      catalog,
		badges:       expirable.NewLRU[string, model.Badge](size, nil, catalogCacheTTL),
		achievements: expirable.NewLRU[string, model.Achievement](size, nil, catalogCacheTTL),
	}
}

// ResolveBadge follows a cache-aside strategy over CatalogStore.GetBadge.
func (r *CachedCatalogResolver) ResolveBadge(ctx context.Context, badgeID string) (model.Badge, error) {
	// [HOT_PATH]
	if b, ok := r.badges.Get(badgeID); ok {
		return b, nil
	}
	b, err := r.catalog.GetBadge(ctx, badgeID)
	if err != nil {
		return model.Badge{}, fmt.Errorf("resolve badge %s: %w", badgeID, err)
	}
	r.badges.Add(badgeID, b)
	return b, nil
}

func (r *CachedCatalogResolver) ResolveAchievement(ctx context.Context, achievementID string) (model.Achievement, error) {
	if a, ok := r.achievements.Get(achievementID); ok {
		return a, nil
	}
	all, err := r.catalog.ListAllAchievements(ctx)
	if err != nil {
		return model.Achievement{}, fmt.Errorf("resolve achievement %s: %w", achievementID, err)
	}
	// [CACHE_POPULATION] one list call warms every rule
	var (
		found model.Achievement
		ok    bool
	)
	for _, a := range all {
		r.achievements.Add(a.ID, a)
		if a.ID == achievementID {
			found, ok = a, true
		}
	}
	if !ok {
		return model.Achievement{}, fmt.Errorf("resolve achievement %s: %w", achievementID, store.ErrNotFound)
	}
	return found, nil
}

func (r *CachedCatalogResolver) Purge() {
	r.badges.Purge()
	r.achievements.Purge()
}
