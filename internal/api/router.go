package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/agenciateixeira/t3-sub001/internal/app"
	iauth "github.com/agenciateixeira/t3-sub001/internal/auth"
	"github.com/agenciateixeira/t3-sub001/internal/handlers"
	"github.com/agenciateixeira/t3-sub001/internal/middleware"
	"github.com/agenciateixeira/t3-sub001/internal/monitoring"
	"github.com/agenciateixeira/t3-sub001/internal/monitoring/checks"
	"github.com/agenciateixeira/t3-sub001/internal/push"
	"github.com/agenciateixeira/t3-sub001/internal/realtime"
	"github.com/agenciateixeira/t3-sub001/internal/reminders"
	"github.com/agenciateixeira/t3-sub001/internal/services"
)

// Dependencies bundles everything the HTTP surface is wired to.
type Dependencies struct {
	DB             *gorm.DB
	Config         *app.Config
	JWT            *iauth.JWTService
	Hub            *realtime.Hub
	Notifications  *services.NotificationService
	Subscriptions  *services.SubscriptionService
	Dispatcher     *push.Dispatcher
	VAPIDPublicKey string
	Sessions       *reminders.Manager
	Scanner        reminders.UserScanner
	// Events is the cross-instance relay; nil when NATS is disabled.
	Events checks.EventBus
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Hub == nil:
		return fmt.Errorf("realtime hub must be provided")
	case d.Notifications == nil:
		return fmt.Errorf("notification service must be provided")
	case d.Subscriptions == nil:
		return fmt.Errorf("subscription service must be provided")
	case d.Sessions == nil || d.Scanner == nil:
		return fmt.Errorf("reminder sessions and scanner must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	registerHealthRoutes(r, cfg, handlers.Health(healthManager(deps)))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// The WebSocket route authenticates on its own: browsers cannot send headers on upgrade.
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT, deps.Sessions, realtime.DefaultStreams...)
	r.GET("/api/realtime", realtimeHandler.Stream)
	r.GET("/api/realtime/:stream", realtimeHandler.Stream)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))
	api.Use(middleware.RateLimit(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications)
	if err != nil {
		return nil, err
	}
	registerNotificationRoutes(api, notificationHandler)

	pushHandler, err := handlers.NewPushHandler(deps.Subscriptions, deps.Dispatcher, deps.VAPIDPublicKey)
	if err != nil {
		return nil, err
	}
	registerPushRoutes(api, pushHandler)

	reminderHandler, err := handlers.NewReminderHandler(deps.Sessions, deps.Scanner)
	if err != nil {
		return nil, err
	}
	registerReminderRoutes(api, reminderHandler)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func healthManager(deps Dependencies) *monitoring.HealthManager {
	manager := monitoring.NewHealthManager(0)
	manager.Register(checks.Database(deps.DB))
	if deps.Dispatcher != nil {
		manager.Register(checks.Push(deps.Dispatcher))
	} else {
		manager.Register(checks.Push(nil))
	}
	manager.Register(checks.Sessions(deps.Sessions))
	if deps.Events != nil {
		manager.Register(checks.Events(deps.Events))
	}
	return manager
}
