package slots

import (
	"time"

	"github.com/google/uuid"
)

// Modality is how the appointment is delivered
type Modality string

const (
	ModalityTelehealth Modality = "TELEHEALTH"
	ModalityInPerson   Modality = "IN_PERSON"
)

// IsValid checks if the modality is a known value
func (m Modality) IsValid() bool {
	switch m {
	case ModalityTelehealth, ModalityInPerson:
		return true
	default:
		return false
	}
}

// DayPart buckets a slot's start time into the coarse time-of-day bands
// patients state preferences in.
type DayPart string

const (
	DayPartMorning   DayPart = "MORNING"   // [06:00, 12:00)
	DayPartAfternoon DayPart = "AFTERNOON" // [12:00, 17:00)
	DayPartEvening   DayPart = "EVENING"   // [17:00, 22:00)
	DayPartOffHours  DayPart = "OFF_HOURS"
)

// Slot represents one appointment opening, typically freed by a
// cancellation. Immutable once created; consumed by exactly one booking.
type Slot struct {
	ID              uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ProviderID      uuid.UUID  `json:"provider_id" gorm:"type:uuid;not null;index"`
	StartTime       time.Time  `json:"start_time" gorm:"not null;index"`
	EndTime         time.Time  `json:"end_time" gorm:"not null"`
	Modality        Modality   `json:"modality" gorm:"type:varchar(20);not null"`
	AppointmentType string     `json:"appointment_type" gorm:"not null"`
	BookedPatientID *uuid.UUID `json:"booked_patient_id,omitempty" gorm:"type:uuid;index"`
	BookedAt        *time.Time `json:"booked_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsBooked returns true once the slot has been bound to a patient
func (s *Slot) IsBooked() bool {
	return s.BookedPatientID != nil
}

// DayPart returns the time-of-day bucket of the slot's start time
func (s *Slot) DayPart() DayPart {
	return DayPartOf(s.StartTime)
}

// Weekday returns the slot's day of week as its uppercase English name,
// the form preference sets are stored in.
func (s *Slot) Weekday() string {
	return WeekdayName(s.StartTime)
}

// DayPartOf buckets an arbitrary time into a DayPart
func DayPartOf(t time.Time) DayPart {
	switch hour := t.Hour(); {
	case hour >= 6 && hour < 12:
		return DayPartMorning
	case hour >= 12 && hour < 17:
		return DayPartAfternoon
	case hour >= 17 && hour < 22:
		return DayPartEvening
	default:
		return DayPartOffHours
	}
}

// WeekdayName returns the uppercase weekday name for a time
func WeekdayName(t time.Time) string {
	switch t.Weekday() {
	case time.Monday:
		return "MONDAY"
	case time.Tuesday:
		return "TUESDAY"
	case time.Wednesday:
		return "WEDNESDAY"
	case time.Thursday:
		return "THURSDAY"
	case time.Friday:
		return "FRIDAY"
	case time.Saturday:
		return "SATURDAY"
	default:
		return "SUNDAY"
	}
}
