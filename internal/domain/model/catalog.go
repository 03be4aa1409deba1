package model

import (
	"fmt"
	"strings"
	"time"
)

// Rarity orders badges from common to legendary.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Rank returns the sort position of r. Unknown rarities sort last.
func (r Rarity) Rank() int {
	switch r {
	case RarityCommon:
		return 0
	case RarityRare:
		return 1
	case RarityEpic:
		return 2
	case RarityLegendary:
		return 3
	default:
		return 4
	}
}

// ParseRarity accepts any casing and defaults an empty value to common.
func ParseRarity(s string) (Rarity, error) {
	r := Rarity(strings.ToLower(strings.TrimSpace(s)))
	if r == "" {
		return RarityCommon, nil
	}
	if r.Rank() > 3 {
		return "", fmt.Errorf("unknown rarity %q", s)
	}
	return r, nil
}

type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Rarity      Rarity `json:"rarity"`
	Points      int    `json:"points"`
	IsActive    bool   `json:"is_active"`
}

// Achievement is a threshold rule: reaching TargetValue occurrences of
// EventName completes it. BadgeID may be empty for badge-less achievements.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	EventName   string `json:"event_name"`
	TargetValue int    `json:"target_value"`
	BadgeID     string `json:"badge_id,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// UserBadge is unique per (UserID, BadgeID). IsCompleted only moves false to true.
type UserBadge struct {
	UserID      string     `json:"user_id"`
	BadgeID     string     `json:"badge_id"`
	Progress    int        `json:"progress"`
	IsCompleted bool       `json:"is_completed"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
}

// UserAchievement records completion of a badge-less achievement.
type UserAchievement struct {
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	CompletedAt   time.Time `json:"completed_at"`
}
