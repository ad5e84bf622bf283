// Package api assembles the HTTP surface of the Smart Post backend.
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/smartpost/internal/app"
	iauth "github.com/charlesng35/smartpost/internal/auth"
	"github.com/charlesng35/smartpost/internal/handlers"
	"github.com/charlesng35/smartpost/internal/middleware"
	"github.com/charlesng35/smartpost/internal/notifications"
	"github.com/charlesng35/smartpost/internal/realtime"
	"github.com/charlesng35/smartpost/internal/services"
)

// Dependencies lists the services the router mounts. Hub may be nil when realtime push is
// disabled; DB may be nil to skip the database health probe.
type Dependencies struct {
	Config    *app.Config
	DB        handlers.Pinger
	JWT       *iauth.JWTService
	Accounts  *services.AccountService
	Devices   *services.DeviceService
	Media     *services.MediaService
	Profiles  *services.ProfileService
	Inbox     *notifications.Inbox
	Hub       *realtime.Hub
	RateStore middleware.RateStore
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Accounts == nil:
		return fmt.Errorf("account service must be provided")
	case d.Devices == nil:
		return fmt.Errorf("device service must be provided")
	case d.Media == nil:
		return fmt.Errorf("media service must be provided")
	case d.Profiles == nil:
		return fmt.Errorf("profile service must be provided")
	case d.Inbox == nil:
		return fmt.Errorf("inbox must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.MaxMultipartMemory = 8 << 20

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	registerHealthRoutes(r, deps.DB, cfg.Monitoring.Prometheus)

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}
	registerAuthRoutes(r, handlers.NewAuthHandler(deps.Accounts),
		middleware.RateLimit(rateStore, cfg.Auth.RateLimit.Requests, cfg.Auth.RateLimit.Window))

	notificationHandler := handlers.NewNotificationHandler(deps.Inbox, deps.Hub, deps.JWT)

	// The websocket stream authenticates from its query string, so it sits outside the
	// bearer-protected group.
	r.GET("/api/notifications/stream", notificationHandler.Stream)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	registerDeviceRoutes(api, handlers.NewDeviceHandler(deps.Devices))
	registerNotificationRoutes(api, notificationHandler)
	registerMediaRoutes(api, handlers.NewMediaHandler(deps.Media, cfg.Media.MaxUploadBytes))
	registerProfileRoutes(api, handlers.NewProfileHandler(deps.Profiles))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
