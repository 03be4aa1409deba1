package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/im-gamification-service/internal/domain/model"
)

// ResolverMiddleware implements [DECORATOR_PATTERN] to add observability
// to catalog lookups without touching the resolver.
type ResolverMiddleware struct {
	Next   CatalogResolver
	Logger *slog.Logger
}

func NewResolverMiddleware(next CatalogResolver, logger *slog.Logger) CatalogResolver {
	return &ResolverMiddleware{Next: next, Logger: logger}
}

func (m *ResolverMiddleware) ResolveBadge(ctx context.Context, badgeID string) (model.Badge, error) {
	start := time.Now()
	b, err := m.Next.ResolveBadge(ctx, badgeID)
	if err != nil {
		m.Logger.Warn("BADGE_RESOLVE_FAILED",
			"badge_id", badgeID,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return b, err
}

func (m *ResolverMiddleware) ResolveAchievement(ctx context.Context, achievementID string) (model.Achievement, error) {
	start := time.Now()
	a, err := m.Next.ResolveAchievement(ctx, achievementID)
	if err != nil {
		m.Logger.Warn("ACHIEVEMENT_RESOLVE_FAILED",
			"achievement_id", achievementID,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return a, err
}

func (m *ResolverMiddleware) Purge() {
	m.Next.Purge()
	m.Logger.Debug("CATALOG_CACHE_PURGED")
}
