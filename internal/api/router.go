package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/app"
	"github.com/campuskit/notifier/internal/engine"
	"github.com/campuskit/notifier/internal/handlers"
	"github.com/campuskit/notifier/internal/middleware"
	"github.com/campuskit/notifier/internal/realtime"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
// User identity comes from the X-User-ID header set by the upstream gateway.
func NewRouter(db *gorm.DB, eng *engine.Engine, hub *realtime.Hub, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine must be provided")
	}
	if hub == nil {
		return nil, fmt.Errorf("realtime hub must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.Identity())
	r.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(db))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(cfg.Monitoring.Prometheus.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	notificationHandler, err := handlers.NewNotificationHandler(eng.Store, hub)
	if err != nil {
		return nil, err
	}
	preferenceHandler, err := handlers.NewPreferenceHandler(eng.Prefs)
	if err != nil {
		return nil, err
	}
	templateHandler, err := handlers.NewTemplateHandler(eng.Templates)
	if err != nil {
		return nil, err
	}
	scheduleHandler, err := handlers.NewScheduleHandler(eng.Scheduler)
	if err != nil {
		return nil, err
	}
	eventHandler, err := handlers.NewEventHandler(eng.Scheduler)
	if err != nil {
		return nil, err
	}
	streamHandler, err := handlers.NewStreamHandler(hub)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")

	// User-scoped feed routes
	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/stream", streamHandler.Subscribe)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.GET("/stats", notificationHandler.Stats)
		notifications.PUT("/read-all", notificationHandler.MarkAllRead)
		notifications.GET("/:id", notificationHandler.Get)
		notifications.PUT("/:id/read", notificationHandler.MarkRead)
		notifications.PUT("/:id/unread", notificationHandler.MarkUnread)
		notifications.PUT("/:id/archive", notificationHandler.Archive)
		notifications.PUT("/:id/unarchive", notificationHandler.Unarchive)
		notifications.POST("/:id/cancel", notificationHandler.Cancel)
		notifications.DELETE("/:id", notificationHandler.Delete)
	}

	preferences := api.Group("/preferences")
	{
		preferences.GET("", preferenceHandler.List)
		preferences.GET("/:type", preferenceHandler.Get)
		preferences.PUT("/:type", preferenceHandler.Put)
		preferences.DELETE("/:type", preferenceHandler.Delete)
	}

	// Service-to-service event ingestion
	events := api.Group("/events")
	{
		events.POST("", eventHandler.Fire)
		events.POST("/assignment-due", eventHandler.AssignmentDue)
		events.POST("/class", eventHandler.Class)
		events.POST("/payment", eventHandler.Payment)
	}

	// Operator routes; the gateway restricts these to admin callers.
	admin := api.Group("/admin")
	{
		admin.POST("/notifications", notificationHandler.Create)
		admin.GET("/stats", notificationHandler.GlobalStats)

		templates := admin.Group("/templates")
		{
			templates.GET("", templateHandler.List)
			templates.GET("/default/:type", templateHandler.GetDefault)
			templates.GET("/:id", templateHandler.Get)
			templates.POST("", templateHandler.Create)
			templates.PUT("/:id", templateHandler.Update)
			templates.DELETE("/:id", templateHandler.Delete)
			templates.POST("/:id/preview", templateHandler.Preview)
		}

		schedules := admin.Group("/schedules")
		{
			schedules.GET("", scheduleHandler.List)
			schedules.GET("/:id", scheduleHandler.Get)
			schedules.POST("", scheduleHandler.Create)
			schedules.PUT("/:id", scheduleHandler.Update)
			schedules.DELETE("/:id", scheduleHandler.Delete)
			schedules.POST("/:id/activate", scheduleHandler.Activate)
			schedules.POST("/:id/deactivate", scheduleHandler.Deactivate)
		}
	}

	return r, nil
}
