package patients

import (
	"context"
	"net/http"

	"mindline/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OptOutApplier applies an SMS opt-out across everything the patient has
// standing: the directory flag plus their open waitlist entries.
type OptOutApplier interface {
	SetSMSOptOut(ctx context.Context, patientID uuid.UUID) error
}

type Controller struct {
	service Service
	optOuts OptOutApplier
}

func NewController(service Service, optOuts OptOutApplier) *Controller {
	return &Controller{service: service, optOuts: optOuts}
}

func (c *Controller) CreatePatient(ctx *gin.Context) {
	var request CreatePatientRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	patient := &Patient{
		FirstName: request.FirstName,
		LastName:  request.LastName,
		Phone:     request.Phone,
		Email:     request.Email,
	}
	if err := c.service.CreatePatient(ctx.Request.Context(), patient); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Patient created", patient, nil)
}

func (c *Controller) GetPatient(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("patient_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid patient ID", nil, nil)
		return
	}

	patient, err := c.service.GetPatient(ctx.Request.Context(), id)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusNotFound, "Patient not found", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Patient retrieved", patient, nil)
}

// OptOut flags the patient as unreachable over SMS. Staff use this for
// verbal opt-out requests; texting STOP reaches the same flag through the
// reply webhook.
func (c *Controller) OptOut(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("patient_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid patient ID", nil, nil)
		return
	}

	if err := c.optOuts.SetSMSOptOut(ctx.Request.Context(), id); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, err.Error(), nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Patient opted out of SMS", nil, nil)
}
