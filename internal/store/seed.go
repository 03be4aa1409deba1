package store

import (
	"context"
	"fmt"

	"github.com/gosimple/slug"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/model"
)

// SeedCatalog makes the stored catalog match cfg: entries are upserted, and
// stored entries cfg no longer names are deactivated. Missing ids are derived
// from names.
func SeedCatalog(ctx context.Context, s CatalogStore, cfg config.CatalogConfig) (badges, achievements int, err error) {
	seenBadges := make(map[string]struct{}, len(cfg.Badges))
	for _, bc := range cfg.Badges {
		b, err := badgeFromConfig(bc)
		if err != nil {
			return badges, achievements, err
		}
		if _, err := s.UpsertBadge(ctx, b); err != nil {
			return badges, achievements, fmt.Errorf("seed badge %s: %w", b.ID, err)
		}
		seenBadges[b.ID] = struct{}{}
		badges++
	}

	seenRules := make(map[string]struct{}, len(cfg.Achievements))
	for _, ac := range cfg.Achievements {
		a := achievementFromConfig(ac)
		if _, err := s.UpsertAchievement(ctx, a); err != nil {
			return badges, achievements, fmt.Errorf("seed achievement %s: %w", a.ID, err)
		}
		seenRules[a.ID] = struct{}{}
		achievements++
	}

	// [RETIRE] deactivate after the upserts so live rules never flicker off
	if err := retireCatalog(ctx, s, seenBadges, seenRules); err != nil {
		return badges, achievements, err
	}
	return badges, achievements, nil
}

func retireCatalog(ctx context.Context, s CatalogStore, badges, rules map[string]struct{}) error {
	stored, err := s.ListBadges(ctx, true)
	if err != nil {
		return fmt.Errorf("seed: list badges: %w", err)
	}
	for _, b := range stored {
		if _, ok := badges[b.ID]; ok {
			continue
		}
		b.IsActive = false
		if _, err := s.UpsertBadge(ctx, b); err != nil {
			return fmt.Errorf("retire badge %s: %w", b.ID, err)
		}
	}

	storedRules, err := s.ListAllAchievements(ctx)
	if err != nil {
		return fmt.Errorf("seed: list achievements: %w", err)
	}
	for _, a := range storedRules {
		if _, ok := rules[a.ID]; ok || !a.IsActive {
			continue
		}
		a.IsActive = false
		if _, err := s.UpsertAchievement(ctx, a); err != nil {
			return fmt.Errorf("retire achievement %s: %w", a.ID, err)
		}
	}
	return nil
}

func achievementFromConfig(ac config.AchievementConfig) model.Achievement {
	a := model.Achievement{
		ID:          ac.ID,
		Name:        ac.Name,
		Description: ac.Description,
		EventName:   ac.Event,
		TargetValue: ac.Target,
		BadgeID:     ac.Badge,
		IsActive:    !ac.Disabled,
	}
	if a.ID == "" {
		a.ID = slug.Make(ac.Name)
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	return a
}

func badgeFromConfig(bc config.BadgeConfig) (model.Badge, error) {
	rarity, err := model.ParseRarity(bc.Rarity)
	if err != nil {
		return model.Badge{}, fmt.Errorf("seed badge %q: %w", bc.Name, err)
	}
	b := model.Badge{
		ID:          bc.ID,
		Name:        bc.Name,
		Description: bc.Description,
		Icon:        bc.Icon,
		Rarity:      rarity,
		Points:      bc.Points,
		IsActive:    !bc.Disabled,
	}
	if b.ID == "" {
		b.ID = slug.Make(bc.Name)
	}
	if b.Name == "" {
		b.Name = b.ID
	}
	return b, nil
}
