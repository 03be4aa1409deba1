package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/handler/rest"
	"github.com/webitel/im-gamification-service/internal/worker"
)

func TestFetchStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"worker":{"pending":3,"running":true,"processed":10},` +
			`"connections":{"connected":1,"user_ids":["u1"]},"listeners":{"post_created":2}}`))
	}))
	defer srv.Close()

	s, err := fetchStats(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Worker.Pending)
	assert.True(t, s.Worker.Running)
	assert.Equal(t, int64(10), s.Worker.Processed)
	assert.Equal(t, []string{"u1"}, s.Connections.UserIDs)
	assert.Equal(t, 2, s.Listeners[event.Name("post_created")])
}

func TestFetchStatsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fetchStats(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestDashboardUpdate(t *testing.T) {
	d := newDashboard()

	s := statsFixture(5, 100)
	d.update(s)
	s = statsFixture(2, 130)
	d.update(s)

	assert.Equal(t, []float64{5, 2}, d.pending.Data)
	assert.Equal(t, []float64{0, 30}, d.processed.Data)
	assert.Equal(t, []string{"like_given", "post_created"}, d.listeners.Labels)
	assert.Equal(t, []float64{1, 2}, d.listeners.Data)
	assert.Contains(t, d.conns.Text, "connected: 1")
}

func statsFixture(pending int, processed int64) rest.StatsResponse {
	return rest.StatsResponse{
		Worker:      worker.Stats{Pending: pending, Processed: processed, Running: true},
		Connections: model.ConnectionStats{Connected: 1, UserIDs: []string{"u1"}},
		Listeners:   map[event.Name]int{"like_given": 1, "post_created": 2},
	}
}

func TestAppendCapped(t *testing.T) {
	var data []float64
	for i := 0; i < sparkHistory+5; i++ {
		data = appendCapped(data, float64(i))
	}
	require.Len(t, data, sparkHistory)
	assert.Equal(t, float64(5), data[0])
}

func TestProvideLoggerLevel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Level = "warn"
	cfg.Service.Name = ServiceName

	logger, err := ProvideLogger(cfg)
	require.NoError(t, err)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	cfg.Log.Level = "loud"
	_, err = ProvideLogger(cfg)
	require.Error(t, err)
}

func TestTeeHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := teeHandler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	logger := slog.New(h).With("component", "test")

	logger.Info("ONLY_PRIMARY")
	logger.Error("BOTH", "err", "boom")

	assert.Contains(t, a.String(), "ONLY_PRIMARY")
	assert.Contains(t, a.String(), "BOTH")
	assert.NotContains(t, b.String(), "ONLY_PRIMARY")
	assert.Contains(t, b.String(), "BOTH")
	assert.Equal(t, 1, strings.Count(b.String(), "component=test"))
}

func TestProvideTracerProviderDisabled(t *testing.T) {
	cfg := &config.Config{}
	tp, err := ProvideTracerProvider(nil, cfg)
	require.NoError(t, err)
	assert.Nil(t, tp)
}
