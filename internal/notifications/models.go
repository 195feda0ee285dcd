package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageKind distinguishes the outbound message families
type MessageKind string

const (
	// KindOffer is the time-boxed slot offer. Sent synchronously: the
	// scheduler needs transmission confirmed before it records the offer.
	KindOffer MessageKind = "OFFER"
	// KindSlotUnavailable is the courtesy note to a losing responder.
	KindSlotUnavailable MessageKind = "SLOT_UNAVAILABLE"
	// KindStaffReport is the terminal job outcome pushed to the practice.
	KindStaffReport MessageKind = "STAFF_REPORT"
)

// DeliveryStatus tracks one outbound message through the provider
type DeliveryStatus string

const (
	DeliveryStatusSending DeliveryStatus = "SENDING"
	DeliveryStatusSent    DeliveryStatus = "SENT"
	DeliveryStatusFailed  DeliveryStatus = "FAILED"
)

// OutboundMessage is the payload carried on the Kafka pipeline for the
// asynchronous message kinds. Offers never ride this pipeline.
type OutboundMessage struct {
	ID        uuid.UUID   `json:"id"`
	Kind      MessageKind `json:"kind"`
	Phone     string      `json:"phone"`
	Body      string      `json:"body"`
	PatientID *uuid.UUID  `json:"patient_id,omitempty"`
	JobID     *uuid.UUID  `json:"job_id,omitempty"`
	OfferID   *uuid.UUID  `json:"offer_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ToJSON serializes the message for the wire
func (m *OutboundMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// GetPartitionKey keeps all messages for one phone number on one partition
// so a patient never sees reordered texts.
func (m *OutboundMessage) GetPartitionKey() string {
	if m.Phone != "" {
		return m.Phone
	}
	return m.ID.String()
}

// DeliveryRecord is the durable audit row for every outbound message,
// whether sent inline or through the pipeline.
type DeliveryRecord struct {
	ID        uuid.UUID   `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Kind      MessageKind `json:"kind" gorm:"type:varchar(30);not null;index"`
	Phone     string      `json:"phone" gorm:"not null"`
	Body      string      `json:"body" gorm:"not null"`
	PatientID *uuid.UUID  `json:"patient_id,omitempty" gorm:"type:uuid;index"`
	JobID     *uuid.UUID  `json:"job_id,omitempty" gorm:"type:uuid;index"`
	OfferID   *uuid.UUID  `json:"offer_id,omitempty" gorm:"type:uuid;index"`

	Status            DeliveryStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	ProviderMessageID *string        `json:"provider_message_id,omitempty"`
	LastError         *string        `json:"last_error,omitempty"`
	Attempts          int            `json:"attempts" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// MarkSent records a successful provider handoff
func (r *DeliveryRecord) MarkSent(providerMessageID string) {
	r.Status = DeliveryStatusSent
	r.ProviderMessageID = &providerMessageID
}

// MarkFailed records the final failure reason
func (r *DeliveryRecord) MarkFailed(err error) {
	r.Status = DeliveryStatusFailed
	msg := err.Error()
	r.LastError = &msg
}
