package waitlist

import (
	"net/http"
	"strconv"
	"time"

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

func (c *Controller) CreateEntry(ctx *gin.Context) {
	var request CreateEntryRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	entry, err := c.service.CreateEntry(ctx.Request.Context(), &request)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Waitlist entry created", entry, nil)
}

func (c *Controller) GetEntry(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("entry_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid entry ID", nil, nil)
		return
	}

	entry, err := c.service.GetEntry(ctx.Request.Context(), id)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusNotFound, "Waitlist entry not found", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist entry retrieved", entry, nil)
}

func (c *Controller) CancelEntry(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("entry_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid entry ID", nil, nil)
		return
	}

	if err := c.service.CancelEntry(ctx.Request.Context(), id); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist entry cancelled", nil, nil)
}

func (c *Controller) ListEntries(ctx *gin.Context) {
	status := EntryStatus(ctx.Query("status"))
	if status != "" && !status.IsValid() {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid status filter", nil, nil)
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	entries, err := c.service.ListEntries(ctx.Request.Context(), status, limit, offset)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist entries retrieved", entries, nil)
}

func (c *Controller) ListPatientEntries(ctx *gin.Context) {
	patientID, err := uuid.Parse(ctx.Param("patient_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid patient ID", nil, nil)
		return
	}

	entries, err := c.service.ListPatientEntries(ctx.Request.Context(), patientID)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Patient entries retrieved", entries, nil)
}

func (c *Controller) GetStats(ctx *gin.Context) {
	day := time.Now()
	if raw := ctx.Query("day"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid day, expected YYYY-MM-DD", nil, nil)
			return
		}
		day = parsed
	}

	stats, err := c.service.GetStats(ctx.Request.Context(), day)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist stats retrieved", stats, nil)
}

func (c *Controller) HealthCheck(ctx *gin.Context) {
	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist service healthy", nil, nil)
}
