package worker

import (
	"context"
	"log/slog"

	"github.com/webitel/im-gamification-service/internal/domain/event"
)

// Exporter ships an event to systems outside the process.
type Exporter interface {
	Export(ctx context.Context, ev event.Event) error
}

var (
	_ Handler       = (*EventHandler)(nil)
	_ event.Visitor = (*EventHandler)(nil)
)

// EventHandler is the default job handler: one audit line per event followed
// by export. An export failure fails the job so it is retried.
type EventHandler struct {
	logger   *slog.Logger
	exporter Exporter
}

func NewEventHandler(logger *slog.Logger, exporter Exporter) *EventHandler {
	return &EventHandler{logger: logger, exporter: exporter}
}

func (h *EventHandler) Handle(ctx context.Context, job Job) error {
	h.logger.Debug("JOB_STARTED",
		"job_id", job.ID,
		"event", job.Event.Name(),
		"attempt", job.Attempts(),
		"queued_ms", job.EnqueuedAt.Sub(job.Event.OccurredAt()).Milliseconds(),
	)
	return job.Event.Accept(ctx, h)
}

func (h *EventHandler) export(ctx context.Context, ev event.Event, attrs ...any) error {
	h.logger.Info("GAMIFICATION_EVENT",
		append([]any{"event", ev.Name(), "user_id", ev.UserID(), "occurred_at", ev.OccurredAt()}, attrs...)...)
	if h.exporter == nil {
		return nil
	}
	return h.exporter.Export(ctx, ev)
}

func (h *EventHandler) VisitPostCreated(ctx context.Context, ev event.PostCreated) error {
	return h.export(ctx, ev, "post_id", ev.PostID)
}

func (h *EventHandler) VisitUserFollowed(ctx context.Context, ev event.UserFollowed) error {
	return h.export(ctx, ev, "followed_user_id", ev.FollowedUserID)
}

func (h *EventHandler) VisitUserGainedFollower(ctx context.Context, ev event.UserGainedFollower) error {
	return h.export(ctx, ev, "follower_id", ev.FollowerID)
}

func (h *EventHandler) VisitLevelReached(ctx context.Context, ev event.LevelReached) error {
	return h.export(ctx, ev, "level", ev.Level)
}

func (h *EventHandler) VisitCommentCreated(ctx context.Context, ev event.CommentCreated) error {
	return h.export(ctx, ev, "comment_id", ev.CommentID, "post_id", ev.PostID)
}

func (h *EventHandler) VisitLikeGiven(ctx context.Context, ev event.LikeGiven) error {
	return h.export(ctx, ev, "post_id", ev.PostID)
}

func (h *EventHandler) VisitProfileUpdated(ctx context.Context, ev event.ProfileUpdated) error {
	return h.export(ctx, ev)
}

func (h *EventHandler) VisitLoginStreak(ctx context.Context, ev event.LoginStreak) error {
	return h.export(ctx, ev, "streak_days", ev.StreakDays)
}

func (h *EventHandler) VisitBadgeEarned(ctx context.Context, ev event.BadgeEarned) error {
	return h.export(ctx, ev, "badge_id", ev.BadgeID)
}

func (h *EventHandler) VisitAchievementUnlocked(ctx context.Context, ev event.AchievementUnlocked) error {
	return h.export(ctx, ev, "achievement_id", ev.AchievementID)
}

func (h *EventHandler) VisitXPGained(ctx context.Context, ev event.XPGained) error {
	return h.export(ctx, ev, "xp_gained", ev.XPGained, "total_xp", ev.TotalXP)
}

func (h *EventHandler) VisitStreakMilestone(ctx context.Context, ev event.StreakMilestone) error {
	return h.export(ctx, ev, "streak_days", ev.StreakDays)
}
