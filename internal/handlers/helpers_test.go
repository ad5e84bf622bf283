package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	iauth "github.com/charlesng35/smartpost/internal/auth"
	"github.com/charlesng35/smartpost/internal/database/testutil"
	"github.com/charlesng35/smartpost/internal/docstore"
	"github.com/charlesng35/smartpost/internal/middleware"
	"github.com/charlesng35/smartpost/internal/notifications"
	"github.com/charlesng35/smartpost/internal/realtime"
	"github.com/charlesng35/smartpost/internal/services"
	"github.com/charlesng35/smartpost/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv wires the real services over an in-memory database.
type testEnv struct {
	clock    *testClock
	store    *docstore.GormStore
	jwt      *iauth.JWTService
	hub      *realtime.Hub
	notifier *notifications.Service
	inbox    *notifications.Inbox
	media    *services.MediaService
	accounts *services.AccountService

	auth          *AuthHandler
	devices       *DeviceHandler
	notifications *NotificationHandler
	mediaHandler  *MediaHandler
	profiles      *ProfileHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	store, err := docstore.NewGormStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()), docstore.WithClock(clock.Now))
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "handler-test-secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	hub := realtime.NewHub()

	eventLog, err := notifications.NewEventLogChannel(store)
	require.NoError(t, err)
	inboxChannel, err := notifications.NewInboxChannel(store)
	require.NoError(t, err)
	realtimeChannel, err := notifications.NewRealtimeChannel(hub)
	require.NoError(t, err)

	notifier, err := notifications.NewService(
		[]notifications.Channel{eventLog, inboxChannel, realtimeChannel},
		notifications.WithClock(clock.Now),
	)
	require.NoError(t, err)

	inbox, err := notifications.NewInbox(store, notifications.WithInboxBroadcaster(hub))
	require.NoError(t, err)

	files, err := services.NewFilesystemMediaStore(t.TempDir())
	require.NoError(t, err)
	media, err := services.NewMediaService(store, files, notifier, services.WithMaxUploadBytes(1<<10))
	require.NoError(t, err)

	accounts, err := services.NewAccountService(store, jwtSvc, services.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	profiles, err := services.NewProfileService(store)
	require.NoError(t, err)

	return &testEnv{
		clock:         clock,
		store:         store,
		jwt:           jwtSvc,
		hub:           hub,
		notifier:      notifier,
		inbox:         inbox,
		media:         media,
		accounts:      accounts,
		auth:          NewAuthHandler(accounts),
		devices:       NewDeviceHandler(services.NewDeviceService(notifier)),
		notifications: NewNotificationHandler(inbox, hub, jwtSvc),
		mediaHandler:  NewMediaHandler(media, 1<<10),
		profiles:      NewProfileHandler(profiles),
	}
}

type requestSpec struct {
	method      string
	target      string
	body        io.Reader
	contentType string
	user        string
	params      gin.Params
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

// serve runs handler against a fresh test context the way the router would.
func serve(handler gin.HandlerFunc, spec requestSpec) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	method := spec.method
	if method == "" {
		method = http.MethodGet
	}
	c.Request = httptest.NewRequest(method, spec.target, spec.body)
	if spec.contentType != "" {
		c.Request.Header.Set("Content-Type", spec.contentType)
	}
	if spec.user != "" {
		c.Set(middleware.CtxUserIDKey, spec.user)
	}
	c.Params = spec.params

	handler(c)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder, data any) response.Response {
	t.Helper()

	var payload response.Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	if data != nil && payload.Data != nil {
		raw, err := json.Marshal(payload.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return payload
}

func params(kv ...string) gin.Params {
	out := make(gin.Params, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, gin.Param{Key: kv[i], Value: kv[i+1]})
	}
	return out
}
