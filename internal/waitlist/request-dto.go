package waitlist

import "github.com/google/uuid"

// CreateEntryRequest represents a request to join the waitlist
type CreateEntryRequest struct {
	PatientID           uuid.UUID     `json:"patient_id" binding:"required"`
	PreferredProviderID *uuid.UUID    `json:"preferred_provider_id,omitempty"`
	Priority            PriorityTier  `json:"priority" binding:"required"`
	PreferredDays       StringList    `json:"preferred_days,omitempty"`
	PreferredTimes      StringList    `json:"preferred_times,omitempty"`
	Modality            EntryModality `json:"modality" binding:"required"`
	MaxWaitDays         int           `json:"max_wait_days"`
	MinNoticeHours      int           `json:"min_notice_hours"`
	Flexibility         int           `json:"flexibility" binding:"min=0,max=100"`
}
