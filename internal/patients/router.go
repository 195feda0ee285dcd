package patients

import (
	"mindline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupPatientRoutes configures patient directory routes
func SetupPatientRoutes(rg *gin.RouterGroup, controller *Controller) {
	staff := rg.Group("/patients")
	staff.Use(middleware.JWTAuth(), middleware.RequireRoles(middleware.RoleStaff, middleware.RoleAdmin))
	{
		staff.POST("", controller.CreatePatient)
		staff.GET("/:patient_id", controller.GetPatient)
		staff.POST("/:patient_id/sms-opt-out", controller.OptOut)
	}
}
