// Package store defines the persistence boundary of the gamification pipeline.
// Every operation is atomic at the single-row level and returns the post-mutation row.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/webitel/im-gamification-service/internal/domain/model"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrInvalidInput = errors.New("store: invalid input")
)

// ProgressStore owns counters, activities, XP and earned rewards.
type ProgressStore interface {
	// IncrementCounter creates the counter at 1 or atomically adds 1.
	IncrementCounter(ctx context.Context, userID, eventName string) (model.ProgressCounter, error)
	GetCounters(ctx context.Context, userID string) ([]model.ProgressCounter, error)
	AppendActivity(ctx context.Context, a model.Activity) (model.Activity, error)
	ListActivities(ctx context.Context, userID string, limit int) ([]model.Activity, error)
	// AddXP returns the level row before and after the increment.
	AddXP(ctx context.Context, userID string, points int) (before, after model.UserLevel, err error)
	GetUserLevel(ctx context.Context, userID string) (model.UserLevel, error)

	GetUserBadge(ctx context.Context, userID, badgeID string) (model.UserBadge, error)
	// AwardBadge marks the badge completed unless it already is. awarded is
	// true only for the call that performed the false to true transition.
	AwardBadge(ctx context.Context, userID, badgeID string, progress int, at time.Time) (ub model.UserBadge, awarded bool, err error)
	ListUserBadges(ctx context.Context, userID string) ([]model.UserBadge, error)
	// CompleteAchievement records a badge-less achievement once.
	CompleteAchievement(ctx context.Context, userID, achievementID string, at time.Time) (ua model.UserAchievement, completed bool, err error)
	ListUserAchievements(ctx context.Context, userID string) ([]model.UserAchievement, error)
}

// CatalogStore holds the static badge and achievement configuration.
type CatalogStore interface {
	UpsertBadge(ctx context.Context, b model.Badge) (model.Badge, error)
	GetBadge(ctx context.Context, id string) (model.Badge, error)
	ListBadges(ctx context.Context, activeOnly bool) ([]model.Badge, error)
	UpsertAchievement(ctx context.Context, a model.Achievement) (model.Achievement, error)
	// ListAchievements returns active rules for one event name.
	ListAchievements(ctx context.Context, eventName string) ([]model.Achievement, error)
	ListAllAchievements(ctx context.Context) ([]model.Achievement, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)
	ListNotifications(ctx context.Context, userID string, page model.Page) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) (model.Notification, error)
}

type FailureStore interface {
	RecordFailure(ctx context.Context, f model.Failure) error
	ListFailures(ctx context.Context, page model.Page) ([]model.Failure, error)
}

// Store composes every persistence concern.
type Store interface {
	ProgressStore
	CatalogStore
	NotificationStore
	FailureStore
	Close() error
}
