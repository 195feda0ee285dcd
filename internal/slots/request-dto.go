package slots

import (
	"time"

	"github.com/google/uuid"
)

// OpenSlotRequest announces one newly available appointment opening
type OpenSlotRequest struct {
	ProviderID      uuid.UUID `json:"provider_id" binding:"required"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required"`
	Modality        Modality  `json:"modality" binding:"required"`
	AppointmentType string    `json:"appointment_type" binding:"required"`
}

// BookSlotRequest books a slot for a patient directly, outside any waterfall
type BookSlotRequest struct {
	PatientID uuid.UUID `json:"patient_id" binding:"required"`
}
