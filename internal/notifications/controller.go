package notifications

import (
	"net/http"
	"strconv"

	"mindline/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// ListJobDeliveries returns the full message trail for one waterfall job
func (c *Controller) ListJobDeliveries(ctx *gin.Context) {
	jobID, err := uuid.Parse(ctx.Param("job_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid job ID", nil, nil)
		return
	}

	records, err := c.service.ListJobDeliveries(ctx.Request.Context(), jobID)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Job deliveries retrieved", records, nil)
}

func (c *Controller) ListRecentDeliveries(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	records, total, err := c.service.ListRecentDeliveries(ctx.Request.Context(), limit, offset)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Deliveries retrieved", gin.H{
		"deliveries": records,
		"total":      total,
	}, nil)
}
