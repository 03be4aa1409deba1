package rest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/bus"
	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/domain/registry"
	"github.com/webitel/im-gamification-service/internal/failure"
	"github.com/webitel/im-gamification-service/internal/handler/lp"
	"github.com/webitel/im-gamification-service/internal/handler/ws"
	"github.com/webitel/im-gamification-service/internal/metrics"
	"github.com/webitel/im-gamification-service/internal/service"
	"github.com/webitel/im-gamification-service/internal/store"
	"github.com/webitel/im-gamification-service/internal/store/memstore"
	"github.com/webitel/im-gamification-service/internal/worker"
)

type testStack struct {
	store    *memstore.Store
	bus      *bus.Bus
	hub      *registry.Hub
	worker   *worker.Worker
	notifier *service.NotificationService
	router   *Router
	handler  http.Handler
}

func newTestStack(t *testing.T, mutate func(*config.Config)) *testStack {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		HTTP:     config.HTTPConfig{AllowedOrigins: []string{"*"}},
		Registry: config.RegistryConfig{CommandRate: 100, CommandBurst: 10},
	}
	if mutate != nil {
		mutate(cfg)
	}

	s := memstore.New()
	_, _, err := store.SeedCatalog(ctx, s, config.DefaultCatalog())
	require.NoError(t, err)

	logger := slog.Default()
	m := metrics.New()
	rep := failure.NewRecorder(logger, s, m)
	b := bus.New(logger, rep, m)
	hub := registry.NewHub(logger, m)

	// the worker subscribes first, as it does under fx
	w := worker.New(b, worker.NewMemoryQueue(), worker.NewEventHandler(logger, nil), worker.Config{}, logger, rep, m)

	scoring := service.NewScoringService(s, s, b, logger, rep, m)
	notifier := service.NewNotificationService(s, hub, service.NewCatalogResolver(s, 16),
		service.NotificationConfig{MinXP: 50, Locale: "en"}, logger, rep, m)
	scoring.Attach(b)
	notifier.Attach(b)
	deliverer := service.NewDeliveryService(hub, registry.NewCommandRouter(hub, s, logger))

	t.Cleanup(func() {
		_ = w.Close()
		notifier.Detach(b)
		scoring.Detach(b)
		hub.Shutdown()
	})

	rt := NewRouter(Deps{
		Config:        cfg,
		Logger:        logger,
		Publisher:     b,
		Listeners:     b,
		Scorer:        scoring,
		Notifier:      notifier,
		Notifications: s,
		Failures:      s,
		Jobs:          w,
		Metrics:       m,
		WS:            ws.NewWSHandler(logger, deliverer, cfg),
		LP:            lp.NewLPHandler(deliverer).WithTimeout(100 * time.Millisecond),
	})

	return &testStack{
		store:    s,
		bus:      b,
		hub:      hub,
		worker:   w,
		notifier: notifier,
		router:   rt,
		handler:  rt.Handler(),
	}
}

func (s *testStack) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func mustDecode(t *testing.T, name string, payload map[string]any) event.Event {
	t.Helper()
	ev, err := event.Decode(event.Name(name), payload, time.Time{})
	require.NoError(t, err)
	return ev
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPublishEvent_ScoresBeforeResponding(t *testing.T) {
	s := newTestStack(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"name":    "like_given",
		"payload": map[string]any{"userId": "u1", "postId": "p1"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decode[PublishResponse](t, rec)
	assert.True(t, res.Delivered)
	assert.Equal(t, "u1", res.UserID)

	rec = s.do(t, http.MethodGet, "/api/v1/users/u1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[model.UserStats](t, rec)
	assert.Equal(t, 2, stats.XP)
	assert.Equal(t, 1, stats.BadgeCount)
	assert.Equal(t, 1, stats.Counters["like_given"])

	// the worker queued the raw event and the derived ones
	assert.Positive(t, s.worker.Stats().Pending)
}

func TestPublishEvent_Rejections(t *testing.T) {
	s := newTestStack(t, nil)

	cases := []struct {
		name string
		body map[string]any
		code string
	}{
		{"missing name", map[string]any{"payload": map[string]any{"userId": "u1"}}, "VALIDATION_ERROR"},
		{"unknown event", map[string]any{"name": "nope", "payload": map[string]any{"userId": "u1"}}, "UNKNOWN_EVENT"},
		{"derived event", map[string]any{"name": "badge_earned", "payload": map[string]any{"userId": "u1", "badgeId": "x"}}, "UNKNOWN_EVENT"},
		{"missing user", map[string]any{"name": "post_created", "payload": map[string]any{"postId": "p1"}}, "INVALID_EVENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/events", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.code, decode[errorResponse](t, rec).Error.Code)
		})
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decode[errorResponse](t, rec).Error.Code)
}

func TestBadgeCatalogAndAchievements(t *testing.T) {
	s := newTestStack(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/badges", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	badges := decode[struct{ Items []model.Badge }](t, rec)
	require.NotEmpty(t, badges.Items)
	assert.Equal(t, model.RarityCommon, badges.Items[0].Rarity)

	s.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"name":    "post_created",
		"payload": map[string]any{"userId": "u1", "postId": "p1"},
	})

	rec = s.do(t, http.MethodGet, "/api/v1/users/u1/achievements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decode[struct{ Items []model.AchievementProgress }](t, rec)
	var firstPost *model.AchievementProgress
	for i := range progress.Items {
		if progress.Items[i].Achievement.ID == "first-post" {
			firstPost = &progress.Items[i]
		}
	}
	require.NotNil(t, firstPost)
	assert.True(t, firstPost.IsCompleted)
	assert.Equal(t, 1, firstPost.Current)
}

func TestNotifications_ListAndMarkRead(t *testing.T) {
	s := newTestStack(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/users/u1/notifications", map[string]any{"title": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	n := decode[model.Notification](t, rec)
	assert.Equal(t, "u1", n.UserID)

	rec = s.do(t, http.MethodGet, "/api/v1/users/u1/notifications?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse[model.Notification]](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 5, list.Limit)
	assert.False(t, list.Items[0].Read)

	rec = s.do(t, http.MethodPost, "/api/v1/users/u1/notifications/"+n.ID+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Notification](t, rec).Read)

	rec = s.do(t, http.MethodPost, "/api/v1/users/u2/notifications/"+n.ID+"/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/users/u1/notifications?limit=1000", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/users/u1/notifications", map[string]any{"message": "no title"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBroadcast(t *testing.T) {
	s := newTestStack(t, nil)
	s.hub.Add("a", registry.NewConnector(context.Background(), "a", 4))
	s.hub.Add("b", registry.NewConnector(context.Background(), "b", 4))

	rec := s.do(t, http.MethodPost, "/api/v1/broadcast", map[string]any{"message": "missing title"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/broadcast", map[string]any{"title": "Maintenance"})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[service.BroadcastResult](t, rec)
	assert.Equal(t, 2, res.Recipients)
	assert.Equal(t, 2, res.Delivered)
}

func TestStatsFailuresAndWorker(t *testing.T) {
	s := newTestStack(t, nil)
	s.hub.Add("a", registry.NewConnector(context.Background(), "a", 4))
	s.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"name":    "profile_updated",
		"payload": map[string]any{"userId": "u1"},
	})

	rec := s.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsResponse](t, rec)
	assert.Equal(t, 1, stats.Connections.Connected)
	assert.Positive(t, stats.Worker.Pending)
	// worker plus scoring
	assert.Equal(t, 2, stats.Listeners["post_created"])

	rec = s.do(t, http.MethodGet, "/api/v1/worker/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[struct{ Items []worker.JobView }](t, rec)
	require.NotEmpty(t, jobs.Items)
	assert.Equal(t, "profile_updated", string(jobs.Items[0].EventName))

	rec = s.do(t, http.MethodPost, "/api/v1/worker/drain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Positive(t, decode[map[string]int](t, rec)["processed"])

	rec = s.do(t, http.MethodDelete, "/api/v1/worker/jobs", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, s.worker.Stats().Pending)

	rec = s.do(t, http.MethodGet, "/api/v1/failures", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[listResponse[model.Failure]](t, rec).Items)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestStack(t, nil)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	s.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"name":    "like_given",
		"payload": map[string]any{"userId": "u1", "postId": "p1"},
	})
	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "events_published_total")
}

func TestPublishEvent_RateLimited(t *testing.T) {
	s := newTestStack(t, func(c *config.Config) { c.HTTP.RateLimit = 2 })
	body := map[string]any{"name": "profile_updated", "payload": map[string]any{"userId": "u1"}}

	assert.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/v1/events", body).Code)
	assert.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/v1/events", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, http.MethodPost, "/api/v1/events", body).Code)

	// reads are not throttled
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/badges", nil).Code)
}

func TestLongPoll(t *testing.T) {
	s := newTestStack(t, nil)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/users/u1/poll")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	type result struct {
		code int
		body []byte
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/api/v1/users/u2/poll")
		if err != nil {
			done <- result{}
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		done <- result{code: resp.StatusCode, body: body}
	}()

	require.Eventually(t, func() bool { return s.hub.IsConnected("u2") }, time.Second, 5*time.Millisecond)
	_, err = s.notifier.SendNotification(context.Background(), service.NotificationInput{UserID: "u2", Title: "hi"})
	require.NoError(t, err)

	res := <-done
	require.Equal(t, http.StatusOK, res.code)
	var batch struct {
		Events []registry.Frame `json:"events"`
	}
	require.NoError(t, json.Unmarshal(res.body, &batch))
	require.Len(t, batch.Events, 1)
	assert.Equal(t, registry.FrameNotification, batch.Events[0].Type)
	assert.Eventually(t, func() bool { return !s.hub.IsConnected("u2") }, time.Second, 5*time.Millisecond)
}

func TestWebSocket(t *testing.T) {
	s := newTestStack(t, nil)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?user_id=u1", nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame := func() registry.Frame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f registry.Frame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}

	assert.Equal(t, registry.FrameConnected, readFrame().Type)
	require.Eventually(t, func() bool { return s.hub.IsConnected("u1") }, time.Second, 5*time.Millisecond)

	s.bus.Publish(context.Background(), mustDecode(t, "like_given", map[string]any{"userId": "u1", "postId": "p1"}))
	assert.Equal(t, registry.FrameNotification, readFrame().Type)

	require.NoError(t, conn.WriteJSON(registry.Command{Type: registry.CommandFetchNotifications, Limit: 10}))
	f := readFrame()
	assert.Equal(t, registry.FrameNotifications, f.Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !s.hub.IsConnected("u1") }, time.Second, 5*time.Millisecond)
}
