package waterfall

import (
	"errors"
	"net/http"
	"strconv"

	"mindline/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Controller struct {
	service    Service
	reconciler *Reconciler
	validator  *validator.Validate
}

func NewController(service Service, reconciler *Reconciler) *Controller {
	return &Controller{
		service:    service,
		reconciler: reconciler,
		validator:  validator.New(),
	}
}

// HandleSMSReply ingests one normalized patient reply from the SMS gateway
func (c *Controller) HandleSMSReply(ctx *gin.Context) {
	var request InboundResponseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	if err := c.validator.Struct(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	outcome, err := c.reconciler.Resolve(ctx.Request.Context(), request.JobID, request.EntryID, request.ResponseKind, request.ReceivedAt)
	if err != nil {
		if errors.Is(err, ErrInvalidResponse) {
			// 200 with a rejection outcome: the gateway delivered fine, the
			// reply just no longer applies, so it must not retry.
			response.RespondJSON(ctx, "success", http.StatusOK, "Response not applicable", gin.H{"rejected": true, "reason": err.Error()}, nil)
			return
		}
		if errors.Is(err, ErrLockNotAcquired) {
			response.RespondJSON(ctx, "error", http.StatusConflict, "Job is busy, retry shortly", nil, nil)
			return
		}
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Response applied", gin.H{"outcome": outcome}, nil)
}

func (c *Controller) GetJob(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("job_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid job ID", nil, nil)
		return
	}

	job, err := c.service.GetJob(ctx.Request.Context(), id)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusNotFound, "Waterfall job not found", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waterfall job retrieved", job, nil)
}

func (c *Controller) ListJobs(ctx *gin.Context) {
	status := JobStatus(ctx.Query("status"))
	if status != "" && !status.IsValid() {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid status filter", nil, nil)
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	jobs, total, err := c.service.ListJobs(ctx.Request.Context(), status, limit, offset)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waterfall jobs retrieved", gin.H{
		"jobs":  jobs,
		"total": total,
	}, nil)
}

func (c *Controller) GetJobOffers(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("job_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid job ID", nil, nil)
		return
	}

	offers, err := c.service.GetJobOffers(ctx.Request.Context(), id)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusNotFound, "Waterfall job not found", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Job offers retrieved", offers, nil)
}

func (c *Controller) CancelJob(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("job_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid job ID", nil, nil)
		return
	}

	job, err := c.service.CancelJob(ctx.Request.Context(), id)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waterfall job cancelled", job, nil)
}

// TickJob forces one scheduler step, for staff debugging
func (c *Controller) TickJob(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("job_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid job ID", nil, nil)
		return
	}

	job, err := c.service.Tick(ctx.Request.Context(), id)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waterfall job advanced", job, nil)
}
