package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/agenciateixeira/t3-sub001/internal/api"
	"github.com/agenciateixeira/t3-sub001/internal/app"
	"github.com/agenciateixeira/t3-sub001/internal/app/maintenance"
	iauth "github.com/agenciateixeira/t3-sub001/internal/auth"
	"github.com/agenciateixeira/t3-sub001/internal/database"
	"github.com/agenciateixeira/t3-sub001/internal/events"
	"github.com/agenciateixeira/t3-sub001/internal/monitoring/checks"
	"github.com/agenciateixeira/t3-sub001/internal/push"
	"github.com/agenciateixeira/t3-sub001/internal/realtime"
	"github.com/agenciateixeira/t3-sub001/internal/reminders"
	"github.com/agenciateixeira/t3-sub001/internal/services"
	"github.com/agenciateixeira/t3-sub001/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	JWT           *iauth.JWTService
	Hub           *realtime.Hub
	Publisher     *events.Publisher
	Notifications *services.NotificationService
	Subscriptions *services.SubscriptionService
	Dispatcher    *push.Dispatcher
	Scanner       *reminders.Scanner
	Sessions      *reminders.Manager
	Cleaner       *maintenance.Cleaner
	Router        *gin.Engine
}

// bootstrapRuntime initialises the database, services, background workers and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.JWT, err = iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub(cfg.Server.AllowedOrigins...)
	broadcaster := realtime.Broadcasters{stack.Hub}

	if cfg.Events.NATS.Enabled {
		stack.Publisher, err = events.Connect(events.Config{
			URL:           cfg.Events.NATS.URL,
			SubjectPrefix: cfg.Events.NATS.SubjectPrefix,
			Name:          cfg.Events.NATS.Name,
			MaxReconnects: cfg.Events.NATS.MaxReconnects,
			ReconnectWait: cfg.Events.NATS.ReconnectWait,
		})
		if err != nil {
			return nil, fmt.Errorf("connect event bus: %w", err)
		}
		if err := stack.Publisher.Relay(stack.Hub); err != nil {
			return nil, fmt.Errorf("relay event bus: %w", err)
		}
		broadcaster = append(broadcaster, stack.Publisher)
		log.Info("event bus connected", zap.String("url", cfg.Events.NATS.URL))
	}

	stack.Notifications, err = services.NewNotificationService(stack.DB, broadcaster)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	stack.Subscriptions, err = services.NewSubscriptionService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise subscription service: %w", err)
	}

	keys, err := resolveVAPIDKeys(ctx, stack.DB, cfg)
	if err != nil {
		return nil, err
	}
	channel, err := buildPushChannel(cfg, keys, log)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		log.Warn("web push disabled: no usable vapid keys")
	}

	stack.Dispatcher, err = push.NewDispatcher(pushChannelOrNil(channel), stack.Subscriptions,
		push.WithDispatchConcurrency(cfg.Push.Concurrency),
		push.WithRateLimit(cfg.Push.RateLimit, cfg.Push.RateBurst),
		push.WithDispatchTimeout(cfg.Push.DispatchTimeout),
		push.WithReportBroadcaster(broadcaster),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise push dispatcher: %w", err)
	}
	stack.Notifications.AddCreatedListener(stack.Dispatcher)

	tasks, err := services.NewTaskService(stack.DB, cfg.Reminders.OpenStatuses)
	if err != nil {
		return nil, fmt.Errorf("initialise task service: %w", err)
	}

	loc, err := cfg.Reminders.Location()
	if err != nil {
		return nil, err
	}
	stack.Scanner, err = reminders.NewScanner(tasks, stack.Notifications,
		reminders.WithLocation(loc),
		reminders.WithDedupWindow(cfg.Reminders.DedupWindow),
		reminders.WithConcurrency(cfg.Reminders.Concurrency),
		reminders.WithLocale(cfg.Reminders.Locale),
		reminders.WithTaskURL(cfg.Reminders.TaskURLTemplate),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise reminder scanner: %w", err)
	}

	stack.Sessions, err = reminders.NewManager(stack.Scanner,
		reminders.WithInterval(cfg.Reminders.Interval),
		reminders.WithBroadcaster(broadcaster),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise reminder sessions: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.Sessions, stack.Subscriptions,
			maintenance.WithSessionIdleTTL(cfg.Reminders.SessionIdleTTL),
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionReapSchedule),
			maintenance.WithSubscriptionSchedule(cfg.Maintenance.SubscriptionSchedule),
			maintenance.WithSubscriptionMaxAge(cfg.Maintenance.SubscriptionMaxAge),
			maintenance.WithNotificationSchedule(cfg.Maintenance.NotificationSchedule),
			maintenance.WithNotificationRetention(cfg.Maintenance.NotificationRetention),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:             stack.DB,
		Config:         cfg,
		JWT:            stack.JWT,
		Hub:            stack.Hub,
		Notifications:  stack.Notifications,
		Subscriptions:  stack.Subscriptions,
		Dispatcher:     stack.Dispatcher,
		VAPIDPublicKey: publicKeyOf(channel),
		Sessions:       stack.Sessions,
		Scanner:        stack.Scanner,
		Events:         eventBusOrNil(stack.Publisher),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background work in dependency order and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	if s.Sessions != nil {
		s.Sessions.CloseAll()
	}

	if s.Dispatcher != nil {
		waitDone := make(chan struct{})
		go func() {
			s.Dispatcher.Wait()
			close(waitDone)
		}()
		select {
		case <-waitDone:
		case <-ctx.Done():
			log.Warn("push deliveries still in flight at shutdown")
		}
	}

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Warn("event bus shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

// resolveVAPIDKeys prefers keys from configuration and falls back to the ones stored by -generate-vapid-keys.
func resolveVAPIDKeys(ctx context.Context, db *gorm.DB, cfg *app.Config) (database.VAPIDKeys, error) {
	if !cfg.Push.Enabled {
		return database.VAPIDKeys{}, nil
	}

	keys := database.VAPIDKeys{
		PublicKey:  strings.TrimSpace(cfg.Push.VAPIDPublicKey),
		PrivateKey: strings.TrimSpace(cfg.Push.VAPIDPrivateKey),
	}
	if keys.Complete() {
		return keys, nil
	}

	stored, err := database.LoadVAPIDKeys(ctx, db)
	if err != nil {
		return database.VAPIDKeys{}, fmt.Errorf("load vapid keys: %w", err)
	}
	return stored, nil
}

// buildPushChannel returns nil, without error, when push is disabled or keys are missing or malformed.
func buildPushChannel(cfg *app.Config, keys database.VAPIDKeys, log *zap.Logger) (*push.WebPushChannel, error) {
	if !cfg.Push.Enabled || !keys.Complete() {
		return nil, nil
	}

	channel, err := push.NewWebPushChannel(push.WebPushConfig{
		VAPIDPublicKey:  keys.PublicKey,
		VAPIDPrivateKey: keys.PrivateKey,
		Subject:         cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
		Urgency:         cfg.Push.Urgency,
		Timeout:         cfg.Push.Timeout,
	})
	if errors.Is(err, push.ErrNotConfigured) {
		return nil, nil
	}
	if errors.Is(err, push.ErrInvalidKeys) {
		log.Warn("ignoring malformed vapid keys", zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("initialise web push: %w", err)
	}
	return channel, nil
}

// pushChannelOrNil keeps a nil *WebPushChannel from becoming a non-nil Channel interface.
func pushChannelOrNil(channel *push.WebPushChannel) push.Channel {
	if channel == nil {
		return nil
	}
	return channel
}

func eventBusOrNil(publisher *events.Publisher) checks.EventBus {
	if publisher == nil {
		return nil
	}
	return publisher
}

func publicKeyOf(channel *push.WebPushChannel) string {
	if channel == nil {
		return ""
	}
	return channel.PublicKey()
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, multierr.Append(fmt.Errorf("auto-migrate database: %w", err), database.Close(db))
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))
	return db, nil
}
