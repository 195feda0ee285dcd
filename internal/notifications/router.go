package notifications

import (
	"mindline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupNotificationRoutes configures the delivery audit routes
func SetupNotificationRoutes(rg *gin.RouterGroup, controller *Controller) {
	admin := rg.Group("/admin/deliveries")
	admin.Use(middleware.JWTAuth(), middleware.RequireAdmin())
	{
		admin.GET("", controller.ListRecentDeliveries)
		admin.GET("/job/:job_id", controller.ListJobDeliveries)
	}
}
