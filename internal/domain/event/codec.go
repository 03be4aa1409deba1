package event

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	ErrUnknownEvent  = errors.New("event: unknown event name")
	ErrInvalidField  = errors.New("event: invalid payload field")
	ErrMissingUserID = errors.New("event: userId is required")
)

// Decode builds a typed event from its flat wire payload. occurredAt is used
// when non-zero, otherwise the event is stamped with the current time.
func Decode(name Name, payload map[string]any, occurredAt time.Time) (Event, error) {
	f := fields(payload)

	userID, err := f.str("userId", true)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrMissingUserID
	}

	meta := NewMeta(userID)
	if !occurredAt.IsZero() {
		meta.At = occurredAt.UTC()
	}

	var ev Event
	switch name {
	case NamePostCreated:
		e := PostCreated{Meta: meta}
		e.PostID, err = f.str("postId", true)
		ev = e
	case NameUserFollowed:
		e := UserFollowed{Meta: meta}
		e.FollowedUserID, err = f.str("followedUserId", true)
		ev = e
	case NameUserGainedFollower:
		e := UserGainedFollower{Meta: meta}
		e.FollowerID, err = f.str("followerId", true)
		ev = e
	case NameLevelReached:
		e := LevelReached{Meta: meta}
		e.Level, err = f.int("level")
		ev = e
	case NameCommentCreated:
		e := CommentCreated{Meta: meta}
		if e.CommentID, err = f.str("commentId", true); err == nil {
			e.PostID, err = f.str("postId", false)
		}
		ev = e
	case NameLikeGiven:
		e := LikeGiven{Meta: meta}
		e.PostID, err = f.str("postId", true)
		ev = e
	case NameProfileUpdated:
		ev = ProfileUpdated{Meta: meta}
	case NameLoginStreak:
		e := LoginStreak{Meta: meta}
		e.StreakDays, err = f.int("streakDays")
		ev = e
	case NameBadgeEarned:
		e := BadgeEarned{Meta: meta}
		e.BadgeID, err = f.str("badgeId", true)
		ev = e
	case NameAchievementUnlocked:
		e := AchievementUnlocked{Meta: meta}
		e.AchievementID, err = f.str("achievementId", true)
		ev = e
	case NameXPGained:
		e := XPGained{Meta: meta}
		if e.XPGained, err = f.int("xpGained"); err == nil {
			e.TotalXP, err = f.optInt("totalXp")
		}
		ev = e
	case NameStreakMilestone:
		e := StreakMilestone{Meta: meta}
		e.StreakDays, err = f.int("streakDays")
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

type fields map[string]any

func (f fields) str(key string, required bool) (string, error) {
	v, ok := f[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("%w: %s is required", ErrInvalidField, key)
		}
		return "", nil
	}
	switch t := v.(type) {
	case string:
		if required && t == "" {
			return "", fmt.Errorf("%w: %s is required", ErrInvalidField, key)
		}
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", fmt.Errorf("%w: %s must be a scalar id", ErrInvalidField, key)
	}
}

func (f fields) int(key string) (int, error) {
	if _, ok := f[key]; !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidField, key)
	}
	return f.optInt(key)
}

func (f fields) optInt(key string) (int, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return 0, nil
	}
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int64:
		n = int(t)
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidField, key)
		}
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidField, key)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidField, key)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must be non-negative", ErrInvalidField, key)
	}
	return n, nil
}

// Data flattens an event payload into string values for activity records.
func Data(ev Event) map[string]string {
	out := make(map[string]string)
	for k, v := range ev.Payload() {
		switch t := v.(type) {
		case string:
			out[k] = t
		case int:
			out[k] = strconv.Itoa(t)
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}
