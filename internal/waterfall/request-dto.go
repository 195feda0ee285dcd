package waterfall

import (
	"time"

	"github.com/google/uuid"
)

// InboundResponseRequest is the normalized reply posted by the SMS gateway.
// Decoding raw provider payloads into this shape happens upstream.
type InboundResponseRequest struct {
	JobID        uuid.UUID    `json:"job_id" validate:"required"`
	EntryID      uuid.UUID    `json:"entry_id" validate:"required"`
	ResponseKind ResponseKind `json:"response_kind" validate:"required,oneof=ACCEPT DECLINE OPT_OUT"`
	ReceivedAt   time.Time    `json:"received_at" validate:"required"`
}
