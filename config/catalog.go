package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/webitel/im-gamification-service/internal/domain/event"
)

// CatalogConfig is the static badge and achievement configuration.
type CatalogConfig struct {
	Badges       []BadgeConfig       `mapstructure:"badges"`
	Achievements []AchievementConfig `mapstructure:"achievements"`
}

type BadgeConfig struct {
	// ID is derived from Name when empty.
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Icon        string `mapstructure:"icon"`
	Rarity      string `mapstructure:"rarity"`
	Points      int    `mapstructure:"points"`
	Disabled    bool   `mapstructure:"disabled"`
}

type AchievementConfig struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Event       string `mapstructure:"event"`
	Target      int    `mapstructure:"target"`
	// Badge may be empty for achievements that only unlock.
	Badge    string `mapstructure:"badge"`
	Disabled bool   `mapstructure:"disabled"`
}

func (c CatalogConfig) Validate() error {
	var errs []error
	for i, a := range c.Achievements {
		if !event.Name(a.Event).IsScorable() {
			errs = append(errs, fmt.Errorf("catalog.achievements[%d]: event %q is not scorable", i, a.Event))
		}
		if a.Target < 1 {
			errs = append(errs, fmt.Errorf("catalog.achievements[%d]: target must be at least 1", i))
		}
		if a.ID == "" && a.Name == "" {
			errs = append(errs, fmt.Errorf("catalog.achievements[%d]: id or name is required", i))
		}
	}
	for i, b := range c.Badges {
		if b.ID == "" && b.Name == "" {
			errs = append(errs, fmt.Errorf("catalog.badges[%d]: id or name is required", i))
		}
		if b.Points < 0 {
			errs = append(errs, fmt.Errorf("catalog.badges[%d]: points must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// DefaultCatalog is used when the configuration has no catalog section.
func DefaultCatalog() CatalogConfig {
	return CatalogConfig{
		Badges: []BadgeConfig{
			{ID: "first-post", Name: "First Post", Description: "Published your first post", Icon: "pencil", Rarity: "common", Points: 10},
			{ID: "first-like", Name: "First Like", Description: "Liked your first post", Icon: "heart", Rarity: "common", Points: 5},
			{ID: "first-comment", Name: "First Comment", Description: "Joined the conversation", Icon: "speech", Rarity: "common", Points: 5},
			{ID: "profile-complete", Name: "Looking Good", Description: "Updated your profile", Icon: "id-card", Rarity: "common", Points: 5},
			{ID: "generous", Name: "Generous", Description: "Gave 100 likes", Icon: "hearts", Rarity: "rare", Points: 25},
			{ID: "social-butterfly", Name: "Social Butterfly", Description: "Followed 10 people", Icon: "butterfly", Rarity: "rare", Points: 20},
			{ID: "commentator", Name: "Commentator", Description: "Wrote 25 comments", Icon: "megaphone", Rarity: "rare", Points: 30},
			{ID: "prolific-writer", Name: "Prolific Writer", Description: "Published 25 posts", Icon: "books", Rarity: "epic", Points: 50},
			{ID: "rising-star", Name: "Rising Star", Description: "Gained 50 followers", Icon: "star", Rarity: "epic", Points: 75},
			{ID: "devoted", Name: "Devoted", Description: "Kept a login streak 30 times", Icon: "flame", Rarity: "legendary", Points: 100},
		},
		Achievements: []AchievementConfig{
			{ID: "first-post", Name: "First Post", Event: "post_created", Target: 1, Badge: "first-post"},
			{ID: "prolific-writer", Name: "Prolific Writer", Event: "post_created", Target: 25, Badge: "prolific-writer"},
			{ID: "first-like", Name: "First Like", Event: "like_given", Target: 1, Badge: "first-like"},
			{ID: "generous", Name: "Generous", Event: "like_given", Target: 100, Badge: "generous"},
			{ID: "first-comment", Name: "First Comment", Event: "comment_created", Target: 1, Badge: "first-comment"},
			{ID: "commentator", Name: "Commentator", Event: "comment_created", Target: 25, Badge: "commentator"},
			{ID: "social-butterfly", Name: "Social Butterfly", Event: "user_followed", Target: 10, Badge: "social-butterfly"},
			{ID: "rising-star", Name: "Rising Star", Event: "user_gained_follower", Target: 50, Badge: "rising-star"},
			{ID: "profile-complete", Name: "Looking Good", Event: "profile_updated", Target: 1, Badge: "profile-complete"},
			{ID: "devoted", Name: "Devoted", Event: "login_streak", Target: 30, Badge: "devoted"},
			{ID: "climber", Name: "Climber", Description: "Reached level 5", Event: "level_reached", Target: 4},
		},
	}
}

// WatchCatalog re-reads the config file on change and calls onChange with
// every valid catalog. Invalid revisions are logged and ignored.
func WatchCatalog(path string, logger *slog.Logger, onChange func(CatalogConfig)) error {
	if path == "" {
		return errors.New("config: catalog watch requires a config file")
	}
	v, err := newViper(path)
	if err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CatalogConfig
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			logger.Error("CATALOG_RELOAD_FAILED", "err", err, "file", e.Name)
			return
		}
		if err := updated.Validate(); err != nil {
			logger.Warn("CATALOG_RELOAD_REJECTED", "err", err, "file", e.Name)
			return
		}
		logger.Info("CATALOG_RELOADED", "file", e.Name, "badges", len(updated.Badges), "achievements", len(updated.Achievements))
		onChange(updated)
	})
	v.WatchConfig()
	return nil
}
