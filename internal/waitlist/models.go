package waitlist

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"mindline/internal/slots"

	"github.com/google/uuid"
)

// StringList represents a JSON string array stored in the database
type StringList []string

// Value implements the driver.Valuer interface for database storage
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for database retrieval
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, l)
}

// GormDataType tells GORM how to handle this type
func (StringList) GormDataType() string {
	return "jsonb"
}

// Contains reports whether the list holds the given value
func (l StringList) Contains(value string) bool {
	for _, item := range l {
		if item == value {
			return true
		}
	}
	return false
}

// PriorityTier orders waitlist entries by clinical urgency
type PriorityTier string

const (
	PriorityUrgent PriorityTier = "URGENT"
	PriorityHigh   PriorityTier = "HIGH"
	PriorityMedium PriorityTier = "MEDIUM"
	PriorityLow    PriorityTier = "LOW"
)

// Weight maps tiers onto a comparable scale, higher is more urgent
func (p PriorityTier) Weight() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// IsValid checks if the priority tier is valid
func (p PriorityTier) IsValid() bool {
	return p.Weight() > 0
}

// EntryModality is the entry's delivery preference; ANY accepts both
type EntryModality string

const (
	EntryModalityTelehealth EntryModality = "TELEHEALTH"
	EntryModalityInPerson   EntryModality = "IN_PERSON"
	EntryModalityAny        EntryModality = "ANY"
)

// IsValid checks if the entry modality is valid
func (m EntryModality) IsValid() bool {
	switch m {
	case EntryModalityTelehealth, EntryModalityInPerson, EntryModalityAny:
		return true
	default:
		return false
	}
}

// Accepts reports whether the preference is compatible with a slot modality
func (m EntryModality) Accepts(slotModality slots.Modality) bool {
	switch m {
	case EntryModalityAny:
		return true
	case EntryModalityTelehealth:
		return slotModality == slots.ModalityTelehealth
	case EntryModalityInPerson:
		return slotModality == slots.ModalityInPerson
	default:
		return false
	}
}

// EntryStatus represents the status of a waitlist entry
type EntryStatus string

const (
	EntryStatusActive    EntryStatus = "ACTIVE"
	EntryStatusMatched   EntryStatus = "MATCHED"
	EntryStatusCancelled EntryStatus = "CANCELLED"
	EntryStatusExpired   EntryStatus = "EXPIRED"
)

// IsValid checks if the entry status is valid
func (es EntryStatus) IsValid() bool {
	switch es {
	case EntryStatusActive, EntryStatusMatched, EntryStatusCancelled, EntryStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if the status can transition to the target status
func (es EntryStatus) CanTransitionTo(target EntryStatus) bool {
	validTransitions := map[EntryStatus][]EntryStatus{
		EntryStatusActive:    {EntryStatusMatched, EntryStatusCancelled, EntryStatusExpired},
		EntryStatusMatched:   {}, // Terminal state
		EntryStatusCancelled: {}, // Terminal state
		EntryStatusExpired:   {}, // Terminal state
	}

	for _, allowed := range validTransitions[es] {
		if allowed == target {
			return true
		}
	}
	return false
}

// WaitlistEntry represents a patient's standing request for an appointment
type WaitlistEntry struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	PatientID uuid.UUID `json:"patient_id" gorm:"type:uuid;not null;index"`

	// PreferredProviderID nil means any provider is acceptable
	PreferredProviderID *uuid.UUID `json:"preferred_provider_id,omitempty" gorm:"type:uuid;index"`

	Priority PriorityTier `json:"priority" gorm:"type:varchar(10);not null;index"`

	// PreferredDays holds uppercase weekday names; empty means any day
	PreferredDays StringList `json:"preferred_days" gorm:"type:jsonb"`
	// PreferredTimes holds day-part names; empty means any time of day
	PreferredTimes StringList `json:"preferred_times" gorm:"type:jsonb"`

	Modality EntryModality `json:"modality" gorm:"type:varchar(20);not null"`

	MaxWaitDays    int `json:"max_wait_days" gorm:"not null;default:90"`
	MinNoticeHours int `json:"min_notice_hours" gorm:"not null;default:0"`

	// Flexibility 0-100; higher accepts more offers
	Flexibility int `json:"flexibility" gorm:"not null;default:50"`

	Status    EntryStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	CreatedAt time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// IsActive returns true if the entry is eligible for ranking
func (we *WaitlistEntry) IsActive() bool {
	return we.Status == EntryStatusActive
}

// IsExpiredAt reports whether the entry's standing request has lapsed at the
// given instant. Checked lazily at ranking time and explicitly by the sweep.
func (we *WaitlistEntry) IsExpiredAt(now time.Time) bool {
	return we.ExpiresAt != nil && !now.Before(*we.ExpiresAt)
}

// AcceptsProvider reports whether the slot's provider satisfies the entry's
// provider preference
func (we *WaitlistEntry) AcceptsProvider(providerID uuid.UUID) bool {
	return we.PreferredProviderID == nil || *we.PreferredProviderID == providerID
}
