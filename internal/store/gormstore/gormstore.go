// Package gormstore persists the pipeline state through gorm (sqlite or postgres).
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/store"
)

var _ store.Store = (*Store)(nil)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects with the given driver and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single connection keeps in-memory databases shared and serializes writers
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	return New(db, log)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(allRows()...); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Store{db: db, logger: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) logError(msg string, err error, args ...any) error {
	s.logger.Error(msg, append([]any{"err", err}, args...)...)
	return err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// --- progress ---

func (s *Store) IncrementCounter(ctx context.Context, userID, eventName string) (model.ProgressCounter, error) {
	userID, eventName = strings.TrimSpace(userID), strings.TrimSpace(eventName)
	if userID == "" || eventName == "" {
		return model.ProgressCounter{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	var row counterRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := counterRow{UserID: userID, EventName: eventName, Count: 1, LastUpdated: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "event_name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count":        gorm.Expr("progress_counters.count + 1"),
				"last_updated": now,
			}),
		}).Create(&insert).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND event_name = ?", userID, eventName).First(&row).Error
	})
	if err != nil {
		return model.ProgressCounter{}, s.logError("COUNTER_INCREMENT_FAILED", err, "user_id", userID, "event", eventName)
	}
	return row.toModel(), nil
}

func (s *Store) GetCounters(ctx context.Context, userID string) ([]model.ProgressCounter, error) {
	var rows []counterRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("event_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.ProgressCounter, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) AppendActivity(ctx context.Context, a model.Activity) (model.Activity, error) {
	if strings.TrimSpace(a.UserID) == "" || a.Points < 0 {
		return model.Activity{}, store.ErrInvalidInput
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	row := activityRow{ID: a.ID, UserID: a.UserID, EventName: a.EventName, EventData: maps.Clone(a.EventData), Points: a.Points, CreatedAt: a.CreatedAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.Activity{}, s.logError("ACTIVITY_APPEND_FAILED", err, "user_id", a.UserID)
	}
	return row.toModel(), nil
}

func (s *Store) ListActivities(ctx context.Context, userID string, limit int) ([]model.Activity, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []activityRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Activity, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) AddXP(ctx context.Context, userID string, points int) (model.UserLevel, model.UserLevel, error) {
	if strings.TrimSpace(userID) == "" || points < 0 {
		return model.UserLevel{}, model.UserLevel{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	var row levelRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := levelRow{UserID: userID, XP: points, Level: model.LevelForXP(points), UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"xp":         gorm.Expr("user_levels.xp + ?", points),
				"updated_at": now,
			}),
		}).Create(&insert).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).First(&row).Error; err != nil {
			return err
		}
		if level := model.LevelForXP(row.XP); level != row.Level {
			row.Level = level
			return tx.Model(&levelRow{}).Where("user_id = ?", userID).Update("level", level).Error
		}
		return nil
	})
	if err != nil {
		return model.UserLevel{}, model.UserLevel{}, s.logError("XP_ADD_FAILED", err, "user_id", userID)
	}

	after := row.toModel()
	before := model.UserLevel{UserID: userID, XP: after.XP - points, UpdatedAt: after.UpdatedAt}
	before.Level = model.LevelForXP(before.XP)
	return before, after, nil
}

func (s *Store) GetUserLevel(ctx context.Context, userID string) (model.UserLevel, error) {
	var row levelRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.UserLevel{UserID: userID, Level: 1}, nil
	}
	if err != nil {
		return model.UserLevel{}, err
	}
	return row.toModel(), nil
}

func (s *Store) GetUserBadge(ctx context.Context, userID, badgeID string) (model.UserBadge, error) {
	var row userBadgeRow
	if err := s.db.WithContext(ctx).Where("user_id = ? AND badge_id = ?", userID, badgeID).First(&row).Error; err != nil {
		return model.UserBadge{}, notFound(err)
	}
	return row.toModel(), nil
}

// AwardBadge relies on a conditional upsert so that concurrent awards of the
// same badge report exactly one transition.
func (s *Store) AwardBadge(ctx context.Context, userID, badgeID string, progress int, at time.Time) (model.UserBadge, bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(badgeID) == "" {
		return model.UserBadge{}, false, store.ErrInvalidInput
	}

	earned := at.UTC()
	var (
		row     userBadgeRow
		awarded bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := userBadgeRow{UserID: userID, BadgeID: badgeID, Progress: progress, IsCompleted: true, EarnedAt: &earned}
		res := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"is_completed": true,
				"earned_at":    earned,
				"progress":     progress,
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Table: "user_badges", Name: "is_completed"}, Value: false},
			}},
		}).Create(&insert)
		if res.Error != nil {
			return res.Error
		}
		awarded = res.RowsAffected > 0
		return tx.Where("user_id = ? AND badge_id = ?", userID, badgeID).First(&row).Error
	})
	if err != nil {
		return model.UserBadge{}, false, s.logError("BADGE_AWARD_FAILED", err, "user_id", userID, "badge_id", badgeID)
	}
	return row.toModel(), awarded, nil
}

func (s *Store) ListUserBadges(ctx context.Context, userID string) ([]model.UserBadge, error) {
	var rows []userBadgeRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("badge_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.UserBadge, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) CompleteAchievement(ctx context.Context, userID, achievementID string, at time.Time) (model.UserAchievement, bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(achievementID) == "" {
		return model.UserAchievement{}, false, store.ErrInvalidInput
	}

	var (
		row       userAchievementRow
		completed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := userAchievementRow{UserID: userID, AchievementID: achievementID, CompletedAt: at.UTC()}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&insert)
		if res.Error != nil {
			return res.Error
		}
		completed = res.RowsAffected > 0
		return tx.Where("user_id = ? AND achievement_id = ?", userID, achievementID).First(&row).Error
	})
	if err != nil {
		return model.UserAchievement{}, false, s.logError("ACHIEVEMENT_COMPLETE_FAILED", err, "user_id", userID, "achievement_id", achievementID)
	}
	return row.toModel(), completed, nil
}

func (s *Store) ListUserAchievements(ctx context.Context, userID string) ([]model.UserAchievement, error) {
	var rows []userAchievementRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("achievement_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.UserAchievement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// --- catalog ---

func (s *Store) UpsertBadge(ctx context.Context, b model.Badge) (model.Badge, error) {
	if strings.TrimSpace(b.ID) == "" {
		return model.Badge{}, store.ErrInvalidInput
	}
	row := badgeFromModel(b)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return model.Badge{}, s.logError("BADGE_UPSERT_FAILED", err, "badge_id", b.ID)
	}
	return row.toModel(), nil
}

func (s *Store) GetBadge(ctx context.Context, id string) (model.Badge, error) {
	var row badgeRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return model.Badge{}, notFound(err)
	}
	return row.toModel(), nil
}

func (s *Store) ListBadges(ctx context.Context, activeOnly bool) ([]model.Badge, error) {
	q := s.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []badgeRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Badge, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	store.SortBadges(out)
	return out, nil
}

func (s *Store) UpsertAchievement(ctx context.Context, a model.Achievement) (model.Achievement, error) {
	if strings.TrimSpace(a.ID) == "" || a.EventName == "" || a.TargetValue < 1 {
		return model.Achievement{}, store.ErrInvalidInput
	}
	row := achievementFromModel(a)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return model.Achievement{}, s.logError("ACHIEVEMENT_UPSERT_FAILED", err, "achievement_id", a.ID)
	}
	return row.toModel(), nil
}

func (s *Store) ListAchievements(ctx context.Context, eventName string) ([]model.Achievement, error) {
	return s.listAchievements(s.db.WithContext(ctx).Where("event_name = ? AND is_active = ?", eventName, true))
}

func (s *Store) ListAllAchievements(ctx context.Context) ([]model.Achievement, error) {
	return s.listAchievements(s.db.WithContext(ctx))
}

func (s *Store) listAchievements(q *gorm.DB) ([]model.Achievement, error) {
	var rows []achievementRow
	if err := q.Order("target_value").Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Achievement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// --- notifications ---

func (s *Store) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if strings.TrimSpace(n.UserID) == "" {
		return model.Notification{}, store.ErrInvalidInput
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	row := notificationRow{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Data:      maps.Clone(n.Data),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.Notification{}, s.logError("NOTIFICATION_CREATE_FAILED", err, "user_id", n.UserID)
	}
	return row.toModel(), nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, page model.Page) ([]model.Notification, error) {
	page = page.Normalize()
	var rows []notificationRow
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) (model.Notification, error) {
	var row notificationRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&notificationRow{}).Where("id = ? AND user_id = ?", id, userID).Update("read", true)
		if res.Error != nil {
			return res.Error
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).First(&row).Error
	})
	if err != nil {
		return model.Notification{}, notFound(err)
	}
	return row.toModel(), nil
}

// --- failures ---

func (s *Store) RecordFailure(ctx context.Context, f model.Failure) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.OccurredAt.IsZero() {
		f.OccurredAt = time.Now().UTC()
	}
	row := failureRow{
		ID:         f.ID,
		Component:  string(f.Component),
		EventName:  f.EventName,
		UserID:     f.UserID,
		JobID:      f.JobID,
		Attempts:   f.Attempts,
		Reason:     f.Reason,
		Payload:    maps.Clone(f.Payload),
		OccurredAt: f.OccurredAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) ListFailures(ctx context.Context, page model.Page) ([]model.Failure, error) {
	page = page.Normalize()
	var rows []failureRow
	if err := s.db.WithContext(ctx).
		Order("occurred_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Failure, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
