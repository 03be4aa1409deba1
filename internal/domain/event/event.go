package event

import (
	"context"
	"time"
)

// Name identifies an event variant on the bus and on the wire.
type Name string

const (
	// [SCORABLE] raw events produced by UI/CRUD actions
	NamePostCreated        Name = "post_created"
	NameUserFollowed       Name = "user_followed"
	NameUserGainedFollower Name = "user_gained_follower"
	NameLevelReached       Name = "level_reached"
	NameCommentCreated     Name = "comment_created"
	NameLikeGiven          Name = "like_given"
	NameProfileUpdated     Name = "profile_updated"
	NameLoginStreak        Name = "login_streak"

	// [DERIVED] events emitted by the scoring pipeline
	NameBadgeEarned         Name = "badge_earned"
	NameAchievementUnlocked Name = "achievement_unlocked"
	NameXPGained            Name = "xp_gained"
	NameStreakMilestone     Name = "streak_milestone"
)

// Scorable lists every event the scoring pipeline reacts to, in a stable order.
var Scorable = []Name{
	NamePostCreated,
	NameUserFollowed,
	NameUserGainedFollower,
	NameLevelReached,
	NameCommentCreated,
	NameLikeGiven,
	NameProfileUpdated,
	NameLoginStreak,
}

// Derived lists reward events produced by the pipeline itself.
var Derived = []Name{
	NameBadgeEarned,
	NameAchievementUnlocked,
	NameXPGained,
	NameStreakMilestone,
}

// All returns scorable and derived names.
func All() []Name {
	out := make([]Name, 0, len(Scorable)+len(Derived))
	out = append(out, Scorable...)
	return append(out, Derived...)
}

// IsScorable reports whether n is a raw, scorable event name.
func (n Name) IsScorable() bool {
	for _, s := range Scorable {
		if s == n {
			return true
		}
	}
	return false
}

// Valid reports whether n is a known event name.
func (n Name) Valid() bool {
	for _, s := range All() {
		if s == n {
			return true
		}
	}
	return false
}

// Event is the closed set of gamification events. Values are immutable once published.
type Event interface {
	Name() Name
	UserID() string
	OccurredAt() time.Time
	// Payload returns the flat wire shape of the event.
	Payload() map[string]any
	// Accept dispatches to the matching Visitor method.
	Accept(ctx context.Context, v Visitor) error

	sealed()
}

// Visitor has one method per event variant. Adding a variant breaks every
// implementation until it handles the new case.
type Visitor interface {
	VisitPostCreated(ctx context.Context, ev PostCreated) error
	VisitUserFollowed(ctx context.Context, ev UserFollowed) error
	VisitUserGainedFollower(ctx context.Context, ev UserGainedFollower) error
	VisitLevelReached(ctx context.Context, ev LevelReached) error
	VisitCommentCreated(ctx context.Context, ev CommentCreated) error
	VisitLikeGiven(ctx context.Context, ev LikeGiven) error
	VisitProfileUpdated(ctx context.Context, ev ProfileUpdated) error
	VisitLoginStreak(ctx context.Context, ev LoginStreak) error

	VisitBadgeEarned(ctx context.Context, ev BadgeEarned) error
	VisitAchievementUnlocked(ctx context.Context, ev AchievementUnlocked) error
	VisitXPGained(ctx context.Context, ev XPGained) error
	VisitStreakMilestone(ctx context.Context, ev StreakMilestone) error
}

// Meta carries the fields shared by every variant.
type Meta struct {
	User string
	At   time.Time
}

// NewMeta stamps an event for userID at the current time.
func NewMeta(userID string) Meta {
	return Meta{User: userID, At: time.Now().UTC()}
}

func (m Meta) UserID() string        { return m.User }
func (m Meta) OccurredAt() time.Time { return m.At }
func (Meta) sealed()                 {}

// NopVisitor ignores every variant. Embed it to handle a subset explicitly.
type NopVisitor struct{}

func (NopVisitor) VisitPostCreated(context.Context, PostCreated) error               { return nil }
func (NopVisitor) VisitUserFollowed(context.Context, UserFollowed) error             { return nil }
func (NopVisitor) VisitUserGainedFollower(context.Context, UserGainedFollower) error { return nil }
func (NopVisitor) VisitLevelReached(context.Context, LevelReached) error             { return nil }
func (NopVisitor) VisitCommentCreated(context.Context, CommentCreated) error         { return nil }
func (NopVisitor) VisitLikeGiven(context.Context, LikeGiven) error                   { return nil }
func (NopVisitor) VisitProfileUpdated(context.Context, ProfileUpdated) error         { return nil }
func (NopVisitor) VisitLoginStreak(context.Context, LoginStreak) error               { return nil }
func (NopVisitor) VisitBadgeEarned(context.Context, BadgeEarned) error               { return nil }
func (NopVisitor) VisitAchievementUnlocked(context.Context, AchievementUnlocked) error {
	return nil
}
func (NopVisitor) VisitXPGained(context.Context, XPGained) error             { return nil }
func (NopVisitor) VisitStreakMilestone(context.Context, StreakMilestone) error { return nil }
