package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/smartpost/internal/api"
	"github.com/charlesng35/smartpost/internal/app"
	"github.com/charlesng35/smartpost/internal/app/maintenance"
	iauth "github.com/charlesng35/smartpost/internal/auth"
	"github.com/charlesng35/smartpost/internal/cache"
	"github.com/charlesng35/smartpost/internal/database"
	"github.com/charlesng35/smartpost/internal/docstore"
	"github.com/charlesng35/smartpost/internal/middleware"
	"github.com/charlesng35/smartpost/internal/notifications"
	"github.com/charlesng35/smartpost/internal/realtime"
	"github.com/charlesng35/smartpost/internal/services"
	"github.com/charlesng35/smartpost/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Store    *docstore.GormStore
	Hub      *realtime.Hub
	Kafka    *kafka.Writer
	Notifier *notifications.Service
	Accounts *services.AccountService
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, notification pipeline, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Store, err = docstore.NewGormStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise document store: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	if cfg.Notifications.Realtime.Enabled {
		stack.Hub = realtime.NewHub()
	}
	var bus notifications.MessageWriter
	if cfg.Notifications.Kafka.Enabled {
		stack.Kafka = notifications.NewKafkaWriter(cfg.Notifications.Kafka.Brokers)
		bus = stack.Kafka
		log.Info("kafka channel enabled",
			zap.Strings("brokers", cfg.Notifications.Kafka.Brokers),
			zap.String("topic", cfg.Notifications.Kafka.Topic),
		)
	}

	channels, err := buildChannels(cfg, stack.Store, stack.Hub, bus)
	if err != nil {
		return nil, err
	}

	stack.Notifier, err = notifications.NewService(channels,
		notifications.WithChannelTimeout(cfg.Notifications.ChannelTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}
	log.Info("notification channels configured", zap.Strings("channels", stack.Notifier.Channels()))

	inboxOpts := []notifications.InboxOption{}
	if stack.Hub != nil {
		inboxOpts = append(inboxOpts, notifications.WithInboxBroadcaster(stack.Hub))
	}
	inbox, err := notifications.NewInbox(stack.Store, inboxOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise inbox: %w", err)
	}

	files, err := services.NewFilesystemMediaStore(cfg.Media.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("initialise media storage: %w", err)
	}
	media, err := services.NewMediaService(stack.Store, files, stack.Notifier,
		services.WithMediaTTL(cfg.Media.TTL),
		services.WithMaxUploadBytes(cfg.Media.MaxUploadBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise media service: %w", err)
	}

	stack.Accounts, err = services.NewAccountService(stack.Store, jwtSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise account service: %w", err)
	}
	if cfg.Auth.SeedDemoUser {
		if err := stack.Accounts.EnsureDemoAccount(ctx); err != nil {
			return nil, fmt.Errorf("seed demo account: %w", err)
		}
	}

	profiles, err := services.NewProfileService(stack.Store)
	if err != nil {
		return nil, fmt.Errorf("initialise profile service: %w", err)
	}

	rateStore, cleanerOpts, err := buildRateStore(cfg, stack.DB)
	if err != nil {
		return nil, err
	}

	if cfg.Maintenance.Enabled {
		cleanerOpts = append(cleanerOpts, maintenance.WithMediaSchedule(cfg.Maintenance.MediaSchedule))
		stack.Cleaner = maintenance.NewCleaner(media, cleanerOpts...)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	sqlDB, err := stack.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("obtain sql handle: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:    cfg,
		DB:        sqlDB,
		JWT:       jwtSvc,
		Accounts:  stack.Accounts,
		Devices:   services.NewDeviceService(stack.Notifier),
		Media:     media,
		Profiles:  profiles,
		Inbox:     inbox,
		Hub:       stack.Hub,
		RateStore: rateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// buildRateStore selects the auth rate limiter backend. The database backend also
// contributes a maintenance job that purges closed windows.
func buildRateStore(cfg *app.Config, db *gorm.DB) (middleware.RateStore, []maintenance.Option, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Auth.RateLimit.Store)) {
	case "", "memory":
		return middleware.NewMemoryRateStore(), nil, nil
	case "database":
		store := cache.NewDatabaseRateStore(db)
		if store == nil {
			return nil, nil, fmt.Errorf("database rate store requires a database handle")
		}
		purge := func(ctx context.Context) error {
			_, err := store.PurgeExpired(ctx)
			return err
		}
		return store, []maintenance.Option{
			maintenance.WithJob("rate_counter_purge", cfg.Maintenance.RateLimitSchedule, purge),
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported rate limit store %q", cfg.Auth.RateLimit.Store)
	}
}

// buildChannels assembles the delivery channels in their fixed order: durable writes first,
// then best-effort fan-out.
func buildChannels(cfg *app.Config, store docstore.Store, hub *realtime.Hub, writer notifications.MessageWriter) ([]notifications.Channel, error) {
	eventLog, err := notifications.NewEventLogChannel(store)
	if err != nil {
		return nil, fmt.Errorf("initialise event log channel: %w", err)
	}
	inbox, err := notifications.NewInboxChannel(store)
	if err != nil {
		return nil, fmt.Errorf("initialise inbox channel: %w", err)
	}
	channels := []notifications.Channel{eventLog, inbox}

	if cfg.Notifications.PushPlaceholders {
		channels = append(channels, notifications.NewWebPushChannel(), notifications.NewMobilePushChannel())
	}

	if hub != nil {
		rt, err := notifications.NewRealtimeChannel(hub)
		if err != nil {
			return nil, fmt.Errorf("initialise realtime channel: %w", err)
		}
		channels = append(channels, rt)
	}

	if writer != nil {
		bus, err := notifications.NewKafkaChannel(writer, cfg.Notifications.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("initialise kafka channel: %w", err)
		}
		channels = append(channels, bus)
	}

	return channels, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	var errs error
	if s.Kafka != nil {
		errs = multierr.Append(errs, s.Kafka.Close())
	}
	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}
	if errs != nil {
		log.Warn("shutdown released resources with errors", zap.Error(errs))
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql handle: %w", err)
	}
	return sqlDB.Close()
}
