package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/smartpost/internal/app"
	"github.com/charlesng35/smartpost/internal/cache"
	"github.com/charlesng35/smartpost/internal/database/testutil"
	"github.com/charlesng35/smartpost/internal/docstore"
	"github.com/charlesng35/smartpost/internal/middleware"
	"github.com/charlesng35/smartpost/internal/notifications"
	"github.com/charlesng35/smartpost/internal/realtime"
	"github.com/charlesng35/smartpost/internal/services"
)

type discardWriter struct{}

func (discardWriter) WriteMessages(context.Context, ...kafka.Message) error { return nil }

func channelNames(channels []notifications.Channel) []string {
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	return names
}

func TestBuildChannelsOrder(t *testing.T) {
	store, err := docstore.NewGormStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	require.NoError(t, err)

	cfg := &app.Config{}
	channels, err := buildChannels(cfg, store, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{notifications.ChannelEventLog, notifications.ChannelInbox}, channelNames(channels))

	cfg.Notifications.PushPlaceholders = true
	cfg.Notifications.Kafka.Topic = "smartpost.notifications"
	channels, err = buildChannels(cfg, store, realtime.NewHub(), discardWriter{})
	require.NoError(t, err)
	require.Equal(t, []string{
		notifications.ChannelEventLog,
		notifications.ChannelInbox,
		notifications.ChannelWebPush,
		notifications.ChannelMobilePush,
		notifications.ChannelRealtime,
		notifications.ChannelKafka,
	}, channelNames(channels))

	cfg.Notifications.Kafka.Topic = ""
	_, err = buildChannels(cfg, store, nil, discardWriter{})
	require.Error(t, err)
}

func TestBuildRateStore(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	cfg := &app.Config{}

	store, opts, err := buildRateStore(cfg, db)
	require.NoError(t, err)
	require.IsType(t, &middleware.MemoryRateStore{}, store)
	require.Empty(t, opts)

	cfg.Auth.RateLimit.Store = "database"
	cfg.Maintenance.RateLimitSchedule = "@every 10m"
	store, opts, err = buildRateStore(cfg, db)
	require.NoError(t, err)
	require.IsType(t, &cache.DatabaseRateStore{}, store)
	require.Len(t, opts, 1)

	count, _, err := store.Increment(context.Background(), "client|/api/auth/login", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	cfg.Auth.RateLimit.Store = "redis"
	_, _, err = buildRateStore(cfg, db)
	require.ErrorContains(t, err, "unsupported rate limit store")
}

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &app.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(dir, "smartpost.sqlite")
	cfg.Auth.JWT.Secret = "bootstrap-test-secret"
	cfg.Auth.JWT.TTL = time.Hour
	cfg.Auth.SeedDemoUser = true
	cfg.Auth.RateLimit = app.RateLimitConfig{Requests: 50, Window: time.Minute}
	cfg.Notifications.ChannelTimeout = time.Second
	cfg.Notifications.PushPlaceholders = true
	cfg.Notifications.Realtime.Enabled = true
	cfg.Media.UploadDir = filepath.Join(dir, "uploads")
	cfg.Media.TTL = 180 * time.Second
	cfg.Media.MaxUploadBytes = 1 << 20
	cfg.Maintenance.Enabled = true
	cfg.Maintenance.MediaSchedule = "@every 1h"
	cfg.Monitoring.Prometheus.Enabled = true
	cfg.Monitoring.Prometheus.Endpoint = "/metrics"
	return cfg
}

func TestBootstrapRuntimeServesDemoLogin(t *testing.T) {
	cfg := testConfig(t)

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.Hub)
	require.Nil(t, stack.Kafka)
	require.NotNil(t, stack.Cleaner)
	require.Equal(t, []string{
		notifications.ChannelEventLog,
		notifications.ChannelInbox,
		notifications.ChannelWebPush,
		notifications.ChannelMobilePush,
		notifications.ChannelRealtime,
	}, stack.Notifier.Channels())

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := json.Marshal(map[string]string{"username": services.DemoUsername, "password": services.DemoPassword})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	info, err := os.Stat(cfg.Media.UploadDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestBootstrapRuntimeRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.MediaSchedule = "whenever"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, loadEnvFile(""))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SMARTPOST_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("SMARTPOST_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("SMARTPOST_TEST_DOTENV"))

	require.NoError(t, loadEnvFile(path))
	require.Equal(t, "loaded", os.Getenv("SMARTPOST_TEST_DOTENV"))
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
