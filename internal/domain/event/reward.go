package event

import "context"

var (
	_ Event = BadgeEarned{}
	_ Event = AchievementUnlocked{}
	_ Event = XPGained{}
	_ Event = StreakMilestone{}
)

// BadgeEarned is published exactly once per (user, badge) completion.
type BadgeEarned struct {
	Meta
	BadgeID string
}

func NewBadgeEarned(userID, badgeID string) BadgeEarned {
	return BadgeEarned{Meta: NewMeta(userID), BadgeID: badgeID}
}

func (BadgeEarned) Name() Name { return NameBadgeEarned }
func (e BadgeEarned) Payload() map[string]any {
	return map[string]any{"userId": e.User, "badgeId": e.BadgeID}
}
func (e BadgeEarned) Accept(ctx context.Context, v Visitor) error {
	return v.VisitBadgeEarned(ctx, e)
}

// AchievementUnlocked is published for achievements that do not grant a badge.
type AchievementUnlocked struct {
	Meta
	AchievementID string
}

func NewAchievementUnlocked(userID, achievementID string) AchievementUnlocked {
	return AchievementUnlocked{Meta: NewMeta(userID), AchievementID: achievementID}
}

func (AchievementUnlocked) Name() Name { return NameAchievementUnlocked }
func (e AchievementUnlocked) Payload() map[string]any {
	return map[string]any{"userId": e.User, "achievementId": e.AchievementID}
}
func (e AchievementUnlocked) Accept(ctx context.Context, v Visitor) error {
	return v.VisitAchievementUnlocked(ctx, e)
}

type XPGained struct {
	Meta
	XPGained int
	TotalXP  int
}

func NewXPGained(userID string, gained, total int) XPGained {
	return XPGained{Meta: NewMeta(userID), XPGained: gained, TotalXP: total}
}

func (XPGained) Name() Name { return NameXPGained }
func (e XPGained) Payload() map[string]any {
	return map[string]any{"userId": e.User, "xpGained": e.XPGained, "totalXp": e.TotalXP}
}
func (e XPGained) Accept(ctx context.Context, v Visitor) error { return v.VisitXPGained(ctx, e) }

type StreakMilestone struct {
	Meta
	StreakDays int
}

func NewStreakMilestone(userID string, days int) StreakMilestone {
	return StreakMilestone{Meta: NewMeta(userID), StreakDays: days}
}

func (StreakMilestone) Name() Name { return NameStreakMilestone }
func (e StreakMilestone) Payload() map[string]any {
	return map[string]any{"userId": e.User, "streakDays": e.StreakDays}
}
func (e StreakMilestone) Accept(ctx context.Context, v Visitor) error {
	return v.VisitStreakMilestone(ctx, e)
}
