// Package memstore is the process-local store used by default and in tests.
// Nothing is evicted: rows live until the process exits, so it suits
// development and single-node trials, not long-running production.
package memstore

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/store"
)

var _ store.Store = (*Store)(nil)

type counterKey struct {
	userID    string
	eventName string
}

// notificationRef locates a notification inside its user's slice.
type notificationRef struct {
	userID string
	index  int
}

type Store struct {
	mu sync.RWMutex

	counters        map[counterKey]model.ProgressCounter
	activities      map[string][]model.Activity
	levels          map[string]model.UserLevel
	userBadges      map[string]map[string]model.UserBadge
	achievements    map[string]map[string]model.UserAchievement
	badges          map[string]model.Badge
	rules           map[string]model.Achievement
	notifications   map[string][]model.Notification
	notificationIDs map[string]notificationRef
	failures        []model.Failure
}

func New() *Store {
	return &Store{
		counters:        make(map[counterKey]model.ProgressCounter),
		activities:      make(map[string][]model.Activity),
		levels:          make(map[string]model.UserLevel),
		userBadges:      make(map[string]map[string]model.UserBadge),
		achievements:    make(map[string]map[string]model.UserAchievement),
		badges:          make(map[string]model.Badge),
		rules:           make(map[string]model.Achievement),
		notifications:   make(map[string][]model.Notification),
		notificationIDs: make(map[string]notificationRef),
	}
}

func (s *Store) Close() error { return nil }

// --- progress ---

func (s *Store) IncrementCounter(_ context.Context, userID, eventName string) (model.ProgressCounter, error) {
	userID, eventName = strings.TrimSpace(userID), strings.TrimSpace(eventName)
	if userID == "" || eventName == "" {
		return model.ProgressCounter{}, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey{userID, eventName}
	c := s.counters[key]
	c.UserID, c.EventName = userID, eventName
	c.Count++
	c.LastUpdated = time.Now().UTC()
	s.counters[key] = c
	return c, nil
}

func (s *Store) GetCounters(_ context.Context, userID string) ([]model.ProgressCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ProgressCounter, 0)
	for k, c := range s.counters {
		if k.userID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventName < out[j].EventName })
	return out, nil
}

func (s *Store) AppendActivity(_ context.Context, a model.Activity) (model.Activity, error) {
	if strings.TrimSpace(a.UserID) == "" || a.Points < 0 {
		return model.Activity{}, store.ErrInvalidInput
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.EventData = maps.Clone(a.EventData)

	s.mu.Lock()
	s.activities[a.UserID] = append(s.activities[a.UserID], a)
	s.mu.Unlock()
	return a, nil
}

func (s *Store) ListActivities(_ context.Context, userID string, limit int) ([]model.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.activities[userID]
	out := make([]model.Activity, 0)
	for i := len(items) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		a := items[i]
		a.EventData = maps.Clone(a.EventData)
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) AddXP(_ context.Context, userID string, points int) (model.UserLevel, model.UserLevel, error) {
	if strings.TrimSpace(userID) == "" || points < 0 {
		return model.UserLevel{}, model.UserLevel{}, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before, ok := s.levels[userID]
	if !ok {
		before = model.UserLevel{UserID: userID, Level: 1}
	}
	after := before
	after.XP += points
	after.Level = model.LevelForXP(after.XP)
	after.UpdatedAt = time.Now().UTC()
	s.levels[userID] = after
	return before, after, nil
}

func (s *Store) GetUserLevel(_ context.Context, userID string) (model.UserLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.levels[userID]; ok {
		return l, nil
	}
	return model.UserLevel{UserID: userID, Level: 1}, nil
}

func (s *Store) GetUserBadge(_ context.Context, userID, badgeID string) (model.UserBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ub, ok := s.userBadges[userID][badgeID]
	if !ok {
		return model.UserBadge{}, store.ErrNotFound
	}
	return ub, nil
}

func (s *Store) AwardBadge(_ context.Context, userID, badgeID string, progress int, at time.Time) (model.UserBadge, bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(badgeID) == "" {
		return model.UserBadge{}, false, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byBadge, ok := s.userBadges[userID]
	if !ok {
		byBadge = make(map[string]model.UserBadge)
		s.userBadges[userID] = byBadge
	}
	if existing, ok := byBadge[badgeID]; ok && existing.IsCompleted {
		return existing, false, nil
	}

	earned := at.UTC()
	ub := model.UserBadge{
		UserID:      userID,
		BadgeID:     badgeID,
		Progress:    progress,
		IsCompleted: true,
		EarnedAt:    &earned,
	}
	byBadge[badgeID] = ub
	return ub, true, nil
}

func (s *Store) ListUserBadges(_ context.Context, userID string) ([]model.UserBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.UserBadge, 0, len(s.userBadges[userID]))
	for _, ub := range s.userBadges[userID] {
		out = append(out, ub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out, nil
}

func (s *Store) CompleteAchievement(_ context.Context, userID, achievementID string, at time.Time) (model.UserAchievement, bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(achievementID) == "" {
		return model.UserAchievement{}, false, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.achievements[userID]
	if !ok {
		byID = make(map[string]model.UserAchievement)
		s.achievements[userID] = byID
	}
	if existing, ok := byID[achievementID]; ok {
		return existing, false, nil
	}
	ua := model.UserAchievement{UserID: userID, AchievementID: achievementID, CompletedAt: at.UTC()}
	byID[achievementID] = ua
	return ua, true, nil
}

func (s *Store) ListUserAchievements(_ context.Context, userID string) ([]model.UserAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.UserAchievement, 0, len(s.achievements[userID]))
	for _, ua := range s.achievements[userID] {
		out = append(out, ua)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}

// --- catalog ---

func (s *Store) UpsertBadge(_ context.Context, b model.Badge) (model.Badge, error) {
	if strings.TrimSpace(b.ID) == "" {
		return model.Badge{}, store.ErrInvalidInput
	}
	s.mu.Lock()
	s.badges[b.ID] = b
	s.mu.Unlock()
	return b, nil
}

func (s *Store) GetBadge(_ context.Context, id string) (model.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.badges[id]
	if !ok {
		return model.Badge{}, store.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListBadges(_ context.Context, activeOnly bool) ([]model.Badge, error) {
	s.mu.RLock()
	out := make([]model.Badge, 0, len(s.badges))
	for _, b := range s.badges {
		if activeOnly && !b.IsActive {
			continue
		}
		out = append(out, b)
	}
	s.mu.RUnlock()

	store.SortBadges(out)
	return out, nil
}

func (s *Store) UpsertAchievement(_ context.Context, a model.Achievement) (model.Achievement, error) {
	if strings.TrimSpace(a.ID) == "" || a.EventName == "" || a.TargetValue < 1 {
		return model.Achievement{}, store.ErrInvalidInput
	}
	s.mu.Lock()
	s.rules[a.ID] = a
	s.mu.Unlock()
	return a, nil
}

func (s *Store) ListAchievements(_ context.Context, eventName string) ([]model.Achievement, error) {
	s.mu.RLock()
	out := make([]model.Achievement, 0)
	for _, a := range s.rules {
		if a.IsActive && a.EventName == eventName {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sortAchievements(out)
	return out, nil
}

func (s *Store) ListAllAchievements(_ context.Context) ([]model.Achievement, error) {
	s.mu.RLock()
	out := make([]model.Achievement, 0, len(s.rules))
	for _, a := range s.rules {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sortAchievements(out)
	return out, nil
}

func sortAchievements(items []model.Achievement) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].TargetValue != items[j].TargetValue {
			return items[i].TargetValue < items[j].TargetValue
		}
		return items[i].ID < items[j].ID
	})
}

// --- notifications ---

func (s *Store) CreateNotification(_ context.Context, n model.Notification) (model.Notification, error) {
	if strings.TrimSpace(n.UserID) == "" {
		return model.Notification{}, store.ErrInvalidInput
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.Data = maps.Clone(n.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notificationIDs[n.ID]; ok {
		return model.Notification{}, store.ErrInvalidInput
	}
	s.notificationIDs[n.ID] = notificationRef{userID: n.UserID, index: len(s.notifications[n.UserID])}
	s.notifications[n.UserID] = append(s.notifications[n.UserID], n)
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, page model.Page) ([]model.Notification, error) {
	page = page.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.notifications[userID]
	out := make([]model.Notification, 0, page.Limit)
	for i := len(items) - 1 - page.Offset; i >= 0 && len(out) < page.Limit; i-- {
		n := items[i]
		n.Data = maps.Clone(n.Data)
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, id string) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.notificationIDs[id]
	if !ok || ref.userID != userID {
		return model.Notification{}, store.ErrNotFound
	}
	n := &s.notifications[userID][ref.index]
	n.Read = true
	out := *n
	out.Data = maps.Clone(out.Data)
	return out, nil
}

// --- failures ---

func (s *Store) RecordFailure(_ context.Context, f model.Failure) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.OccurredAt.IsZero() {
		f.OccurredAt = time.Now().UTC()
	}
	f.Payload = maps.Clone(f.Payload)

	s.mu.Lock()
	s.failures = append(s.failures, f)
	s.mu.Unlock()
	return nil
}

func (s *Store) ListFailures(_ context.Context, page model.Page) ([]model.Failure, error) {
	page = page.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Failure, 0, page.Limit)
	for i := len(s.failures) - 1 - page.Offset; i >= 0 && len(out) < page.Limit; i-- {
		out = append(out, s.failures[i])
	}
	return out, nil
}
