package routes

import (
	"net/http"
	"time"

	"mindline/internal/notifications"
	"mindline/internal/patients"
	"mindline/internal/shared/config"
	"mindline/internal/shared/database"
	"mindline/internal/slots"
	"mindline/internal/waitlist"
	"mindline/internal/waterfall"

	"github.com/gin-gonic/gin"
)

// Services holds the wired application services. They are constructed once
// in main so the HTTP layer and the background processors share instances.
type Services struct {
	Patients      patients.Service
	Slots         slots.Service
	Waitlist      waitlist.Service
	Waterfall     waterfall.Service
	Reconciler    *waterfall.Reconciler
	Notifications notifications.Service
}

// Router holds all route dependencies
type Router struct {
	config   *config.Config
	db       *database.DB
	services *Services
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, services *Services) *Router {
	return &Router{
		config:   cfg,
		db:       db,
		services: services,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		patients.SetupPatientRoutes(api, patients.NewController(r.services.Patients, r.services.Waitlist))
		slots.SetupSlotRoutes(api, slots.NewController(r.services.Slots))
		waitlist.SetupWaitlistRoutes(api, waitlist.NewController(r.services.Waitlist))
		waterfall.SetupWaterfallRoutes(api, waterfall.NewController(r.services.Waterfall, r.services.Reconciler), r.config)
		notifications.SetupNotificationRoutes(api, notifications.NewController(r.services.Notifications))
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "mindline-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "mindline-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}
