package slots

import (
	"errors"
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

// OpenSlot handles the "slot became available" event from staff or the
// practice-management integration.
func (c *Controller) OpenSlot(ctx *gin.Context) {
	var request OpenSlotRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	slot := &Slot{
		ProviderID:      request.ProviderID,
		StartTime:       request.StartTime,
		EndTime:         request.EndTime,
		Modality:        request.Modality,
		AppointmentType: request.AppointmentType,
	}

	jobID, err := c.service.OpenSlot(ctx.Request.Context(), slot)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Slot opened, waterfall started", gin.H{
		"slot":             slot,
		"waterfall_job_id": jobID,
	}, nil)
}

func (c *Controller) GetSlot(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("slot_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid slot ID", nil, nil)
		return
	}

	slot, err := c.service.GetSlot(ctx.Request.Context(), id)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusNotFound, "Slot not found", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Slot retrieved", slot, nil)
}

// BookSlot fills a slot for a patient directly, e.g. from a phone call.
func (c *Controller) BookSlot(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("slot_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid slot ID", nil, nil)
		return
	}

	var request BookSlotRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	slot, err := c.service.BookDirect(ctx.Request.Context(), id, request.PatientID)
	if err != nil {
		if errors.Is(err, ErrSlotAlreadyBooked) {
			response.RespondJSON(ctx, "error", http.StatusConflict, "Slot already booked", nil, nil)
			return
		}
		response.RespondJSON(ctx, "error", http.StatusBadRequest, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Slot booked", slot, nil)
}

func (c *Controller) ListUpcoming(ctx *gin.Context) {
	var providerID *uuid.UUID
	if raw := ctx.Query("provider_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid provider ID", nil, nil)
			return
		}
		providerID = &id
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))

	result, err := c.service.ListUpcoming(ctx.Request.Context(), providerID, limit)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Slots retrieved", result, nil)
}
