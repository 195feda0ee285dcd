package slots

import (
	"mindline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupSlotRoutes configures all slot-related routes
func SetupSlotRoutes(rg *gin.RouterGroup, controller *Controller) {
	group := rg.Group("/slots")
	group.Use(middleware.JWTAuth(), middleware.RequireRoles(middleware.RoleStaff, middleware.RoleAdmin))
	{
		group.POST("/available", controller.OpenSlot)
		group.GET("", controller.ListUpcoming)
		group.GET("/:slot_id", controller.GetSlot)
		group.POST("/:slot_id/book", controller.BookSlot)
	}
}
