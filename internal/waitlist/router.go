package waitlist

import (
	"mindline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupWaitlistRoutes configures all waitlist-related routes
func SetupWaitlistRoutes(rg *gin.RouterGroup, controller *Controller) {
	group := rg.Group("/waitlist")
	{
		// Health check - no auth required
		group.GET("/health", controller.HealthCheck)

		// Staff operations
		staff := group.Group("")
		staff.Use(middleware.JWTAuth(), middleware.RequireRoles(middleware.RoleStaff, middleware.RoleAdmin))
		{
			staff.POST("", controller.CreateEntry)
			staff.GET("", controller.ListEntries)
			staff.GET("/:entry_id", controller.GetEntry)
			staff.DELETE("/:entry_id", controller.CancelEntry)
			staff.GET("/patient/:patient_id", controller.ListPatientEntries)
		}
	}

	// Admin waitlist routes
	admin := rg.Group("/admin/waitlist")
	admin.Use(middleware.JWTAuth(), middleware.RequireAdmin())
	{
		admin.GET("/stats", controller.GetStats)
	}
}
