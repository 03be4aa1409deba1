package gormstore

import (
	"time"

	"github.com/webitel/im-gamification-service/internal/domain/model"
)

type counterRow struct {
	UserID      string `gorm:"primaryKey;size:128"`
	EventName   string `gorm:"primaryKey;size:64"`
	Count       int    `gorm:"not null;default:0"`
	LastUpdated time.Time
}

func (counterRow) TableName() string { return "progress_counters" }

func (r counterRow) toModel() model.ProgressCounter {
	return model.ProgressCounter{UserID: r.UserID, EventName: r.EventName, Count: r.Count, LastUpdated: r.LastUpdated.UTC()}
}

type activityRow struct {
	ID        string            `gorm:"primaryKey;size:36"`
	UserID    string            `gorm:"index:idx_activities_user_created;size:128;not null"`
	EventName string            `gorm:"size:64;not null"`
	EventData map[string]string `gorm:"serializer:json"`
	Points    int               `gorm:"not null"`
	CreatedAt time.Time         `gorm:"index:idx_activities_user_created"`
}

func (activityRow) TableName() string { return "activities" }

func (r activityRow) toModel() model.Activity {
	return model.Activity{ID: r.ID, UserID: r.UserID, EventName: r.EventName, EventData: r.EventData, Points: r.Points, CreatedAt: r.CreatedAt.UTC()}
}

type levelRow struct {
	UserID    string `gorm:"primaryKey;size:128"`
	XP        int    `gorm:"not null;default:0"`
	Level     int    `gorm:"not null;default:1"`
	UpdatedAt time.Time
}

func (levelRow) TableName() string { return "user_levels" }

func (r levelRow) toModel() model.UserLevel {
	return model.UserLevel{UserID: r.UserID, XP: r.XP, Level: r.Level, UpdatedAt: r.UpdatedAt.UTC()}
}

type badgeRow struct {
	ID          string `gorm:"primaryKey;size:128"`
	Name        string `gorm:"size:255;not null"`
	Description string
	Icon        string `gorm:"size:255"`
	Rarity      string `gorm:"size:16;not null"`
	Points      int    `gorm:"not null;default:0"`
	IsActive    bool   `gorm:"not null"`
}

func (badgeRow) TableName() string { return "badges" }

func (r badgeRow) toModel() model.Badge {
	return model.Badge{ID: r.ID, Name: r.Name, Description: r.Description, Icon: r.Icon, Rarity: model.Rarity(r.Rarity), Points: r.Points, IsActive: r.IsActive}
}

func badgeFromModel(b model.Badge) badgeRow {
	return badgeRow{ID: b.ID, Name: b.Name, Description: b.Description, Icon: b.Icon, Rarity: string(b.Rarity), Points: b.Points, IsActive: b.IsActive}
}

type achievementRow struct {
	ID          string `gorm:"primaryKey;size:128"`
	Name        string `gorm:"size:255;not null"`
	Description string
	EventName   string `gorm:"index;size:64;not null"`
	TargetValue int    `gorm:"not null"`
	BadgeID     string `gorm:"size:128"`
	IsActive    bool   `gorm:"not null"`
}

func (achievementRow) TableName() string { return "achievements" }

func (r achievementRow) toModel() model.Achievement {
	return model.Achievement{ID: r.ID, Name: r.Name, Description: r.Description, EventName: r.EventName, TargetValue: r.TargetValue, BadgeID: r.BadgeID, IsActive: r.IsActive}
}

func achievementFromModel(a model.Achievement) achievementRow {
	return achievementRow{ID: a.ID, Name: a.Name, Description: a.Description, EventName: a.EventName, TargetValue: a.TargetValue, BadgeID: a.BadgeID, IsActive: a.IsActive}
}

type userBadgeRow struct {
	UserID      string `gorm:"primaryKey;size:128"`
	BadgeID     string `gorm:"primaryKey;size:128"`
	Progress    int    `gorm:"not null;default:0"`
	IsCompleted bool   `gorm:"not null;default:false"`
	EarnedAt    *time.Time
}

func (userBadgeRow) TableName() string { return "user_badges" }

func (r userBadgeRow) toModel() model.UserBadge {
	ub := model.UserBadge{UserID: r.UserID, BadgeID: r.BadgeID, Progress: r.Progress, IsCompleted: r.IsCompleted}
	if r.EarnedAt != nil {
		t := r.EarnedAt.UTC()
		ub.EarnedAt = &t
	}
	return ub
}

type userAchievementRow struct {
	UserID        string `gorm:"primaryKey;size:128"`
	AchievementID string `gorm:"primaryKey;size:128"`
	CompletedAt   time.Time
}

func (userAchievementRow) TableName() string { return "user_achievements" }

func (r userAchievementRow) toModel() model.UserAchievement {
	return model.UserAchievement{UserID: r.UserID, AchievementID: r.AchievementID, CompletedAt: r.CompletedAt.UTC()}
}

type notificationRow struct {
	ID        string         `gorm:"primaryKey;size:36"`
	UserID    string         `gorm:"index:idx_notifications_user_created;size:128;not null"`
	Type      string         `gorm:"size:32;not null"`
	Title     string         `gorm:"size:255"`
	Message   string
	Data      map[string]any `gorm:"serializer:json"`
	Read      bool           `gorm:"not null;default:false"`
	CreatedAt time.Time      `gorm:"index:idx_notifications_user_created"`
}

func (notificationRow) TableName() string { return "notifications" }

func (r notificationRow) toModel() model.Notification {
	return model.Notification{ID: r.ID, UserID: r.UserID, Type: model.NotificationType(r.Type), Title: r.Title, Message: r.Message, Data: r.Data, Read: r.Read, CreatedAt: r.CreatedAt.UTC()}
}

type failureRow struct {
	ID         string         `gorm:"primaryKey;size:36"`
	Component  string         `gorm:"index;size:32;not null"`
	EventName  string         `gorm:"size:64"`
	UserID     string         `gorm:"size:128"`
	JobID      string         `gorm:"size:36"`
	Attempts   int
	Reason     string
	Payload    map[string]any `gorm:"serializer:json"`
	OccurredAt time.Time      `gorm:"index"`
}

func (failureRow) TableName() string { return "failures" }

func (r failureRow) toModel() model.Failure {
	return model.Failure{ID: r.ID, Component: model.Component(r.Component), EventName: r.EventName, UserID: r.UserID, JobID: r.JobID, Attempts: r.Attempts, Reason: r.Reason, Payload: r.Payload, OccurredAt: r.OccurredAt.UTC()}
}

func allRows() []any {
	return []any{
		&counterRow{},
		&activityRow{},
		&levelRow{},
		&badgeRow{},
		&achievementRow{},
		&userBadgeRow{},
		&userAchievementRow{},
		&notificationRow{},
		&failureRow{},
	}
}
