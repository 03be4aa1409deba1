package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/webitel/im-gamification-service/internal/domain/bus"
	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/failure"
	"github.com/webitel/im-gamification-service/internal/metrics"
	"github.com/webitel/im-gamification-service/internal/store"
)

const recentActivityLimit = 10

// Points is the fixed XP award per scorable event.
var Points = map[event.Name]int{
	event.NamePostCreated:        10,
	event.NameCommentCreated:     5,
	event.NameLikeGiven:          2,
	event.NameUserFollowed:       3,
	event.NameUserGainedFollower: 5,
	event.NameProfileUpdated:     5,
	event.NameLoginStreak:        5,
	event.NameLevelReached:       20,
}

// StreakMilestones are the login streak lengths that publish streak_milestone.
var StreakMilestones = []int{3, 7, 14, 30, 60, 100, 365}

// Scorer is the read and awaited-write surface of the scoring path.
type Scorer interface {
	// Handle scores one event and returns once every side effect settled.
	Handle(ctx context.Context, ev event.Event) error
	UserStats(ctx context.Context, userID string) (model.UserStats, error)
	BadgeCatalog(ctx context.Context) ([]model.Badge, error)
	AchievementProgress(ctx context.Context, userID string) ([]model.AchievementProgress, error)
}

var _ Scorer = (*ScoringService)(nil)

// ScoringService turns scorable events into counters, activities, XP and
// rewards. It is the only writer of progress state.
type ScoringService struct {
	progress  store.ProgressStore
	catalog   store.CatalogStore
	publisher bus.Publisher
	logger    *slog.Logger
	failures  failure.Reporter
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	subs []bus.Subscription
	now  func() time.Time
}

func NewScoringService(
	progress store.ProgressStore,
	catalog store.CatalogStore,
	publisher bus.Publisher,
	logger *slog.Logger,
	failures failure.Reporter,
	m *metrics.Metrics,
) *ScoringService {
	if failures == nil {
		failures = failure.Nop{}
	}
	return &ScoringService{
		progress:  progress,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
		failures:  failures,
		metrics:   m,
		tracer:    otel.Tracer("github.com/webitel/im-gamification-service/internal/service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Attach subscribes the service to every scorable event on b.
func (s *ScoringService) Attach(b *bus.Bus) {
	for _, name := range event.Scorable {
		s.subs = append(s.subs, b.Subscribe(name, s.listen))
	}
}

func (s *ScoringService) Detach(b *bus.Bus) {
	for _, sub := range s.subs {
		b.Unsubscribe(sub)
	}
	s.subs = nil
}

// listen is the bus boundary: failures are logged and recorded, never returned.
func (s *ScoringService) listen(ctx context.Context, ev event.Event) error {
	if err := s.Handle(ctx, ev); err != nil {
		s.logger.Error("SCORING_FAILED", "event", ev.Name(), "user_id", ev.UserID(), "err", err)
		s.failures.Record(ctx, model.Failure{
			Component: model.ComponentScoring,
			EventName: string(ev.Name()),
			UserID:    ev.UserID(),
			Reason:    err.Error(),
			Payload:   ev.Payload(),
		})
	}
	return nil
}

func (s *ScoringService) Handle(ctx context.Context, ev event.Event) (err error) {
	name := ev.Name()
	if !name.IsScorable() {
		return nil
	}
	userID := ev.UserID()

	ctx, span := s.tracer.Start(ctx, "scoring.handle", trace.WithAttributes(
		attribute.String("event.name", string(name)),
		attribute.String("user.id", userID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// 1. [COUNTER]
	counter, err := s.progress.IncrementCounter(ctx, userID, string(name))
	if err != nil {
		return fmt.Errorf("increment counter: %w", err)
	}

	// 2. [ACTIVITY]
	points := Points[name]
	if _, err := s.progress.AppendActivity(ctx, model.Activity{
		UserID:    userID,
		EventName: string(name),
		EventData: event.Data(ev),
		Points:    points,
		CreatedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}

	// 3. [XP]
	if err := s.addXP(ctx, userID, points); err != nil {
		return err
	}

	if streak, ok := ev.(event.LoginStreak); ok && slices.Contains(StreakMilestones, streak.StreakDays) {
		s.publisher.Publish(ctx, event.NewStreakMilestone(userID, streak.StreakDays))
	}

	// 4. [ACHIEVEMENTS]
	return s.evaluate(ctx, userID, name, counter.Count)
}

func (s *ScoringService) addXP(ctx context.Context, userID string, points int) error {
	if points <= 0 {
		return nil
	}
	before, after, err := s.progress.AddXP(ctx, userID, points)
	if err != nil {
		return fmt.Errorf("add xp: %w", err)
	}
	s.metrics.XPAwarded(points)
	s.publisher.Publish(ctx, event.NewXPGained(userID, points, after.XP))

	for level := before.Level + 1; level <= after.Level; level++ {
		s.logger.Info("LEVEL_REACHED", "user_id", userID, "level", level, "xp", after.XP)
		s.publisher.Publish(ctx, event.NewLevelReached(userID, level))
	}
	return nil
}

// evaluate awards every active achievement whose target is met. One failing
// rule does not stop the others.
func (s *ScoringService) evaluate(ctx context.Context, userID string, name event.Name, count int) error {
	rules, err := s.catalog.ListAchievements(ctx, string(name))
	if err != nil {
		return fmt.Errorf("list achievements: %w", err)
	}

	var errs []error
	for _, a := range rules {
		if !a.IsActive || a.TargetValue > count {
			continue
		}
		if err := s.award(ctx, userID, a); err != nil {
			errs = append(errs, fmt.Errorf("achievement %s: %w", a.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *ScoringService) award(ctx context.Context, userID string, a model.Achievement) error {
	if a.BadgeID == "" {
		_, completed, err := s.progress.CompleteAchievement(ctx, userID, a.ID, s.now())
		if err != nil {
			return err
		}
		if completed {
			s.logger.Info("ACHIEVEMENT_UNLOCKED", "user_id", userID, "achievement_id", a.ID)
			s.publisher.Publish(ctx, event.NewAchievementUnlocked(userID, a.ID))
		}
		return nil
	}

	// [IDEMPOTENCE] a completed badge is never re-awarded
	ub, err := s.progress.GetUserBadge(ctx, userID, a.BadgeID)
	switch {
	case err == nil && ub.IsCompleted:
		return nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}

	badge, err := s.catalog.GetBadge(ctx, a.BadgeID)
	if err != nil {
		return fmt.Errorf("badge %s: %w", a.BadgeID, err)
	}
	if !badge.IsActive {
		s.logger.Debug("BADGE_INACTIVE", "badge_id", badge.ID, "achievement_id", a.ID)
		return nil
	}

	now := s.now()
	_, awarded, err := s.progress.AwardBadge(ctx, userID, badge.ID, a.TargetValue, now)
	if err != nil {
		return err
	}
	if !awarded {
		// lost a concurrent award race; the winner publishes
		return nil
	}
	if _, _, err := s.progress.CompleteAchievement(ctx, userID, a.ID, now); err != nil {
		s.logger.Warn("ACHIEVEMENT_RECORD_FAILED", "user_id", userID, "achievement_id", a.ID, "err", err)
	}

	s.metrics.BadgeAwarded(badge.ID)
	s.logger.Info("BADGE_EARNED", "user_id", userID, "badge_id", badge.ID, "rarity", badge.Rarity)
	s.publisher.Publish(ctx, event.NewBadgeEarned(userID, badge.ID))
	return nil
}

// --- reads ---

func (s *ScoringService) UserStats(ctx context.Context, userID string) (model.UserStats, error) {
	stats := model.UserStats{UserID: userID, Counters: map[string]int{}}

	counters, err := s.progress.GetCounters(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("counters: %w", err)
	}
	for _, c := range counters {
		stats.Counters[c.EventName] = c.Count
	}

	lvl, err := s.progress.GetUserLevel(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		lvl = model.UserLevel{UserID: userID, Level: 1}
	case err != nil:
		return stats, fmt.Errorf("level: %w", err)
	}
	stats.XP, stats.Level = lvl.XP, lvl.Level
	if lvl.Level < model.MaxLevel {
		stats.NextLevelXP = model.XPForLevel(lvl.Level + 1)
	}

	if stats.Badges, err = s.progress.ListUserBadges(ctx, userID); err != nil {
		return stats, fmt.Errorf("badges: %w", err)
	}
	for _, ub := range stats.Badges {
		if !ub.IsCompleted {
			continue
		}
		stats.BadgeCount++
		if b, err := s.catalog.GetBadge(ctx, ub.BadgeID); err == nil {
			stats.BadgePoints += b.Points
		}
	}

	if stats.RecentActivity, err = s.progress.ListActivities(ctx, userID, recentActivityLimit); err != nil {
		return stats, fmt.Errorf("activities: %w", err)
	}
	if stats.Achievements, err = s.progress.ListUserAchievements(ctx, userID); err != nil {
		return stats, fmt.Errorf("achievements: %w", err)
	}
	return stats, nil
}

// BadgeCatalog lists active badges by rarity then points, ascending.
func (s *ScoringService) BadgeCatalog(ctx context.Context) ([]model.Badge, error) {
	badges, err := s.catalog.ListBadges(ctx, true)
	if err != nil {
		return nil, err
	}
	store.SortBadges(badges)
	return badges, nil
}

func (s *ScoringService) AchievementProgress(ctx context.Context, userID string) ([]model.AchievementProgress, error) {
	rules, err := s.catalog.ListAllAchievements(ctx)
	if err != nil {
		return nil, err
	}
	counters, err := s.progress.GetCounters(ctx, userID)
	if err != nil {
		return nil, err
	}
	badges, err := s.progress.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlocked, err := s.progress.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(counters))
	for _, c := range counters {
		counts[c.EventName] = c.Count
	}
	earned := make(map[string]bool, len(badges))
	for _, ub := range badges {
		earned[ub.BadgeID] = ub.IsCompleted
	}
	done := make(map[string]bool, len(unlocked))
	for _, ua := range unlocked {
		done[ua.AchievementID] = true
	}

	out := make([]model.AchievementProgress, 0, len(rules))
	for _, a := range rules {
		if !a.IsActive {
			continue
		}
		completed := done[a.ID]
		if a.BadgeID != "" {
			completed = completed || earned[a.BadgeID]
		}
		out = append(out, model.AchievementProgress{
			Achievement: a,
			Current:     min(counts[a.EventName], a.TargetValue),
			Target:      a.TargetValue,
			IsCompleted: completed,
		})
	}
	return out, nil
}
