package model

import "time"

type NotificationType string

const (
	NotificationBadgeEarned         NotificationType = "badge_earned"
	NotificationAchievementUnlocked NotificationType = "achievement_unlocked"
	NotificationLevelUp             NotificationType = "level_up"
	NotificationStreakMilestone     NotificationType = "streak_milestone"
	NotificationXPGained            NotificationType = "xp_gained"
	NotificationSystem              NotificationType = "system"
)

// Notification is the durable artifact of every dispatch attempt.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

// Page bounds list queries.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page into the accepted range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
