package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/webitel/im-gamification-service/internal/domain/bus"
	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/domain/registry"
	"github.com/webitel/im-gamification-service/internal/failure"
	"github.com/webitel/im-gamification-service/internal/metrics"
	"github.com/webitel/im-gamification-service/internal/store"
)

const broadcastConcurrency = 16

// NotificationInput describes one notification to persist and push.
type NotificationInput struct {
	UserID  string                 `json:"user_id" validate:"required"`
	Type    model.NotificationType `json:"type"`
	Title   string                 `json:"title" validate:"required"`
	Message string                 `json:"message"`
	Data    map[string]any         `json:"data,omitempty"`
}

type BroadcastInput struct {
	Type    model.NotificationType `json:"type"`
	Title   string                 `json:"title" validate:"required"`
	Message string                 `json:"message"`
	Data    map[string]any         `json:"data,omitempty"`
}

// BroadcastResult reports independent per-recipient outcomes.
type BroadcastResult struct {
	Recipients int               `json:"recipients"`
	Stored     int               `json:"stored"`
	Delivered  int               `json:"delivered"`
	Failed     map[string]string `json:"failed,omitempty"`
}

type Notifier interface {
	SendNotification(ctx context.Context, in NotificationInput) (model.Notification, error)
	Broadcast(ctx context.Context, in BroadcastInput) BroadcastResult
	Stats() model.ConnectionStats
}

type NotificationConfig struct {
	// MinXP is the smallest xp_gained amount that notifies.
	MinXP  int
	Locale string
}

var _ Notifier = (*NotificationService)(nil)

// NotificationService persists reward notifications and pushes them to live
// channels. Persistence always comes first; push is best effort.
type NotificationService struct {
	notifications store.NotificationStore
	hub           registry.Hubber
	resolver      CatalogResolver
	cfg           NotificationConfig
	validate      *validator.Validate
	logger        *slog.Logger
	failures      failure.Reporter
	metrics       *metrics.Metrics
	tracer        trace.Tracer

	subs []bus.Subscription
}

func NewNotificationService(
	notifications store.NotificationStore,
	hub registry.Hubber,
	resolver CatalogResolver,
	cfg NotificationConfig,
	logger *slog.Logger,
	failures failure.Reporter,
	m *metrics.Metrics,
) *NotificationService {
	if failures == nil {
		failures = failure.Nop{}
	}
	return &NotificationService{
		notifications: notifications,
		hub:           hub,
		resolver:      resolver,
		cfg:           cfg,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		logger:        logger,
		failures:      failures,
		metrics:       m,
		tracer:        otel.Tracer("github.com/webitel/im-gamification-service/internal/service"),
	}
}

// Attach subscribes to the reward events that notify.
func (s *NotificationService) Attach(b *bus.Bus) {
	s.subs = append(s.subs,
		bus.Listen(b, event.NameBadgeEarned, s.onBadgeEarned),
		bus.Listen(b, event.NameAchievementUnlocked, s.onAchievementUnlocked),
		bus.Listen(b, event.NameLevelReached, s.onLevelReached),
		bus.Listen(b, event.NameStreakMilestone, s.onStreakMilestone),
		bus.Listen(b, event.NameXPGained, s.onXPGained),
	)
}

func (s *NotificationService) Detach(b *bus.Bus) {
	for _, sub := range s.subs {
		b.Unsubscribe(sub)
	}
	s.subs = nil
}

func (s *NotificationService) onBadgeEarned(ctx context.Context, ev event.BadgeEarned) error {
	badge, err := s.resolver.ResolveBadge(ctx, ev.BadgeID)
	if err != nil {
		// still notify with what the event carries
		badge = model.Badge{ID: ev.BadgeID, Name: ev.BadgeID}
	}
	title, msg := render(s.cfg.Locale, model.NotificationBadgeEarned, badge.Name)
	return s.notify(ctx, ev, NotificationInput{
		UserID:  ev.UserID(),
		Type:    model.NotificationBadgeEarned,
		Title:   title,
		Message: msg,
		Data: map[string]any{
			"badgeId":     badge.ID,
			"name":        badge.Name,
			"description": badge.Description,
			"icon":        badge.Icon,
			"rarity":      badge.Rarity,
			"points":      badge.Points,
		},
	})
}

func (s *NotificationService) onAchievementUnlocked(ctx context.Context, ev event.AchievementUnlocked) error {
	a, err := s.resolver.ResolveAchievement(ctx, ev.AchievementID)
	if err != nil {
		a = model.Achievement{ID: ev.AchievementID, Name: ev.AchievementID}
	}
	title, msg := render(s.cfg.Locale, model.NotificationAchievementUnlocked, a.Name)
	return s.notify(ctx, ev, NotificationInput{
		UserID:  ev.UserID(),
		Type:    model.NotificationAchievementUnlocked,
		Title:   title,
		Message: msg,
		Data: map[string]any{
			"achievementId": a.ID,
			"name":          a.Name,
			"description":   a.Description,
		},
	})
}

func (s *NotificationService) onLevelReached(ctx context.Context, ev event.LevelReached) error {
	title, msg := render(s.cfg.Locale, model.NotificationLevelUp, ev.Level)
	return s.notify(ctx, ev, NotificationInput{
		UserID:  ev.UserID(),
		Type:    model.NotificationLevelUp,
		Title:   title,
		Message: msg,
		Data:    map[string]any{"level": ev.Level},
	})
}

func (s *NotificationService) onStreakMilestone(ctx context.Context, ev event.StreakMilestone) error {
	title, msg := render(s.cfg.Locale, model.NotificationStreakMilestone, ev.StreakDays)
	return s.notify(ctx, ev, NotificationInput{
		UserID:  ev.UserID(),
		Type:    model.NotificationStreakMilestone,
		Title:   title,
		Message: msg,
		Data:    map[string]any{"streakDays": ev.StreakDays},
	})
}

// onXPGained notifies only for gains of at least MinXP. Smaller gains are
// dropped silently.
func (s *NotificationService) onXPGained(ctx context.Context, ev event.XPGained) error {
	if ev.XPGained < s.cfg.MinXP {
		return nil
	}
	title, msg := render(s.cfg.Locale, model.NotificationXPGained, ev.XPGained, ev.TotalXP)
	return s.notify(ctx, ev, NotificationInput{
		UserID:  ev.UserID(),
		Type:    model.NotificationXPGained,
		Title:   title,
		Message: msg,
		Data:    map[string]any{"xpGained": ev.XPGained, "totalXp": ev.TotalXP},
	})
}

// notify is the listener boundary: failures are recorded, never returned.
func (s *NotificationService) notify(ctx context.Context, ev event.Event, in NotificationInput) error {
	if _, _, err := s.send(ctx, in); err != nil {
		s.logger.Error("NOTIFICATION_FAILED", "event", ev.Name(), "user_id", ev.UserID(), "err", err)
		s.failures.Record(ctx, model.Failure{
			Component: model.ComponentNotification,
			EventName: string(ev.Name()),
			UserID:    ev.UserID(),
			Reason:    err.Error(),
			Payload:   ev.Payload(),
		})
	}
	return nil
}

// SendNotification persists the notification and then attempts a live push.
// A failed push never fails the call.
func (s *NotificationService) SendNotification(ctx context.Context, in NotificationInput) (model.Notification, error) {
	n, _, err := s.send(ctx, in)
	return n, err
}

func (s *NotificationService) send(ctx context.Context, in NotificationInput) (model.Notification, bool, error) {
	if in.Type == "" {
		in.Type = model.NotificationSystem
	}
	if err := s.validate.Struct(in); err != nil {
		return model.Notification{}, false, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	ctx, span := s.tracer.Start(ctx, "notification.send", trace.WithAttributes(
		attribute.String("user.id", in.UserID),
		attribute.String("notification.type", string(in.Type)),
	))
	defer span.End()

	// 1. [PERSIST] the durable artifact
	n, err := s.notifications.CreateNotification(ctx, model.Notification{
		UserID:  in.UserID,
		Type:    in.Type,
		Title:   in.Title,
		Message: in.Message,
		Data:    in.Data,
	})
	if err != nil {
		span.RecordError(err)
		return model.Notification{}, false, fmt.Errorf("persist notification: %w", err)
	}

	// 2. [LIVE_PUSH] best effort
	delivered := s.push(ctx, n)
	span.SetAttributes(attribute.Bool("notification.delivered", delivered))
	s.metrics.Notification(string(n.Type), delivered)
	return n, delivered, nil
}

func (s *NotificationService) push(ctx context.Context, n model.Notification) bool {
	frame, err := registry.EncodeFrame(registry.FrameNotification, n)
	if err != nil {
		s.logger.Error("NOTIFICATION_ENCODE_FAILED", "notification_id", n.ID, "err", err)
		return false
	}
	err = s.hub.Push(ctx, n.UserID, frame)
	switch {
	case err == nil:
		return true
	case errors.Is(err, registry.ErrNotConnected):
		s.logger.Debug("NOTIFICATION_STORED_ONLY", "user_id", n.UserID, "notification_id", n.ID)
	default:
		s.logger.Warn("NOTIFICATION_PUSH_FAILED", "user_id", n.UserID, "notification_id", n.ID, "err", err)
	}
	return false
}

// Broadcast sends one notification to every connected user. Outcomes are
// independent: one failure never affects another recipient.
func (s *NotificationService) Broadcast(ctx context.Context, in BroadcastInput) BroadcastResult {
	recipients := s.hub.UserIDs()
	res := BroadcastResult{Recipients: len(recipients)}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(broadcastConcurrency)
	for _, userID := range recipients {
		g.Go(func() error {
			_, delivered, err := s.send(ctx, NotificationInput{
				UserID:  userID,
				Type:    in.Type,
				Title:   in.Title,
				Message: in.Message,
				Data:    in.Data,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if res.Failed == nil {
					res.Failed = make(map[string]string)
				}
				res.Failed[userID] = err.Error()
				return nil
			}
			res.Stored++
			if delivered {
				res.Delivered++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("BROADCAST_COMPLETED",
		"recipients", res.Recipients,
		"stored", res.Stored,
		"delivered", res.Delivered,
		"failed", len(res.Failed),
	)
	return res
}

func (s *NotificationService) Stats() model.ConnectionStats {
	return s.hub.Stats()
}
