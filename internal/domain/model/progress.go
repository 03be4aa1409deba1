package model

import "time"

// ProgressCounter counts scored occurrences of one event name for one user.
// Count never decreases.
type ProgressCounter struct {
	UserID      string    `json:"user_id"`
	EventName   string    `json:"event_name"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
}

// Activity is an append-only record of one scored occurrence.
type Activity struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	EventName string            `json:"event_name"`
	EventData map[string]string `json:"event_data,omitempty"`
	Points    int               `json:"points"`
	CreatedAt time.Time         `json:"created_at"`
}

// UserLevel holds cumulative XP. Level is always LevelForXP(XP).
type UserLevel struct {
	UserID    string    `json:"user_id"`
	XP        int       `json:"xp"`
	Level     int       `json:"level"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaxLevel caps the level curve.
const MaxLevel = 100

// LevelForXP maps cumulative XP onto the level curve. Level 1 starts at 0 XP,
// level n+1 requires 100n + 25n(n-1) XP.
func LevelForXP(xp int) int {
	if xp <= 0 {
		return 1
	}
	level := 1
	for level < MaxLevel {
		if xp < XPForLevel(level+1) {
			break
		}
		level++
	}
	return level
}

// XPForLevel returns the cumulative XP needed to reach level.
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	n := level - 1
	return 100*n + (50*n*(n-1))/2
}
