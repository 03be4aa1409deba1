package model

// UserStats aggregates a user's progress for read endpoints.
type UserStats struct {
	UserID         string            `json:"user_id"`
	BadgeCount     int               `json:"badge_count"`
	BadgePoints    int               `json:"badge_points"`
	XP             int               `json:"xp"`
	Level          int               `json:"level"`
	NextLevelXP    int               `json:"next_level_xp"`
	Counters       map[string]int    `json:"counters"`
	Badges         []UserBadge       `json:"badges"`
	RecentActivity []Activity        `json:"recent_activity"`
	Achievements   []UserAchievement `json:"achievements,omitempty"`
}

// AchievementProgress compares a user's counter with an achievement target.
type AchievementProgress struct {
	Achievement Achievement `json:"achievement"`
	Current     int         `json:"current"`
	Target      int         `json:"target"`
	IsCompleted bool        `json:"is_completed"`
}

// ConnectionStats describes the live delivery registry.
type ConnectionStats struct {
	Connected int      `json:"connected"`
	UserIDs   []string `json:"user_ids"`
}

// ServerVersion is reported in the connected handshake; cmd overrides it at build time.
var ServerVersion = "0.0.0"

// ConnectedPayload is the handshake sent when a live channel opens.
type ConnectedPayload struct {
	Ok            bool   `json:"ok"`
	ConnectionID  string `json:"connection_id"`
	ServerVersion string `json:"server_version"`
}
