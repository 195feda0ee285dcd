package waterfall

import (
	"mindline/internal/shared/config"
	"mindline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupWaterfallRoutes configures waterfall job routes and the inbound
// SMS reply webhook
func SetupWaterfallRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	// Gateway-facing ingress, shared-secret guarded instead of JWT.
	webhooks := rg.Group("/webhooks")
	webhooks.Use(middleware.WebhookSecret(cfg))
	{
		webhooks.POST("/sms-replies", controller.HandleSMSReply)
	}

	// Staff operations
	staff := rg.Group("/waterfalls")
	staff.Use(middleware.JWTAuth(), middleware.RequireRoles(middleware.RoleStaff, middleware.RoleAdmin))
	{
		staff.GET("", controller.ListJobs)
		staff.GET("/:job_id", controller.GetJob)
		staff.GET("/:job_id/offers", controller.GetJobOffers)
		staff.DELETE("/:job_id", controller.CancelJob)
	}

	// Admin waterfall routes
	admin := rg.Group("/admin/waterfalls")
	admin.Use(middleware.JWTAuth(), middleware.RequireAdmin())
	{
		admin.POST("/:job_id/tick", controller.TickJob)
	}
}
