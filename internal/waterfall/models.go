package waterfall

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// UUIDList represents a JSON array of ids stored in the database
type UUIDList []uuid.UUID

// Value implements the driver.Valuer interface for database storage
func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for database retrieval
func (l *UUIDList) Scan(value interface{}) error {
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
func (UUIDList) GormDataType() string {
	return "jsonb"
}

// AttemptNote records one failed delivery attempt for a candidate
type AttemptNote struct {
	Index     int       `json:"index"`
	EntryID   uuid.UUID `json:"entry_id"`
	At        time.Time `json:"at"`
	Note      string    `json:"note"`
	Permanent bool      `json:"permanent"`
}

// AttemptLog is the job's ordered list of per-attempt failure notes
type AttemptLog []AttemptNote

// Value implements the driver.Valuer interface for database storage
func (l AttemptLog) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for database retrieval
func (l *AttemptLog) Scan(value interface{}) error {
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
func (AttemptLog) GormDataType() string {
	return "jsonb"
}

// AttemptsFor counts the recorded delivery failures for a candidate index
func (l AttemptLog) AttemptsFor(index int) int {
	count := 0
	for _, note := range l {
		if note.Index == index {
			count++
		}
	}
	return count
}

// JobStatus represents the status of a waterfall job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// IsValid checks if the job status is valid
func (js JobStatus) IsValid() bool {
	switch js {
	case JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if the status can transition to the target status.
// Transitions are monotonic and never reversed.
func (js JobStatus) CanTransitionTo(target JobStatus) bool {
	validTransitions := map[JobStatus][]JobStatus{
		JobStatusPending:    {JobStatusInProgress, JobStatusCompleted, JobStatusCancelled},
		JobStatusInProgress: {JobStatusCompleted, JobStatusCancelled},
		JobStatusCompleted:  {}, // Terminal state
		JobStatusCancelled:  {}, // Terminal state
	}

	for _, allowed := range validTransitions[js] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true once the job can no longer change
func (js JobStatus) IsTerminal() bool {
	return js == JobStatusCompleted || js == JobStatusCancelled
}

// JobOutcome describes how a completed job ended
type JobOutcome string

const (
	OutcomeMatched      JobOutcome = "MATCHED"
	OutcomeExhausted    JobOutcome = "EXHAUSTED"
	OutcomeNoCandidates JobOutcome = "NO_CANDIDATES"
	OutcomeCancelled    JobOutcome = "CANCELLED"
)

// WaterfallJob is the durable record of one waterfall run for one slot.
// The candidate list is a snapshot taken at creation; it is never re-ranked
// mid-run. The row is the source of truth consulted on every tick, so a
// restarted process resumes from current_index with nothing in memory.
type WaterfallJob struct {
	ID     uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	SlotID uuid.UUID `json:"slot_id" gorm:"type:uuid;not null;index"`

	CandidateIDs UUIDList `json:"candidate_ids" gorm:"type:jsonb"`
	CurrentIndex int      `json:"current_index" gorm:"not null;default:0"`

	IntervalSecs       int `json:"interval_secs" gorm:"not null"`
	ResponseWindowSecs int `json:"response_window_secs" gorm:"not null"`

	Status  JobStatus  `json:"status" gorm:"type:varchar(20);not null;index"`
	Outcome JobOutcome `json:"outcome,omitempty" gorm:"type:varchar(20)"`

	ErrorLog        AttemptLog `json:"error_log" gorm:"type:jsonb"`
	LastOfferSentAt *time.Time `json:"last_offer_sent_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Interval returns the configured spacing between consecutive timed-out offers
func (j *WaterfallJob) Interval() time.Duration {
	return time.Duration(j.IntervalSecs) * time.Second
}

// ResponseWindow returns how long each recipient has to reply
func (j *WaterfallJob) ResponseWindow() time.Duration {
	return time.Duration(j.ResponseWindowSecs) * time.Second
}

// IsTerminal returns true once the job can no longer change
func (j *WaterfallJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// CurrentCandidate returns the entry id at the current index, if any remain
func (j *WaterfallJob) CurrentCandidate() (uuid.UUID, bool) {
	if j.CurrentIndex < 0 || j.CurrentIndex >= len(j.CandidateIDs) {
		return uuid.Nil, false
	}
	return j.CandidateIDs[j.CurrentIndex], true
}

// OfferState represents the state of one outbound offer
type OfferState string

const (
	OfferStateSent       OfferState = "SENT"
	OfferStateAccepted   OfferState = "ACCEPTED"
	OfferStateDeclined   OfferState = "DECLINED"
	OfferStateExpired    OfferState = "EXPIRED"
	OfferStateSuperseded OfferState = "SUPERSEDED"
)

// IsValid checks if the offer state is valid
func (os OfferState) IsValid() bool {
	switch os {
	case OfferStateSent, OfferStateAccepted, OfferStateDeclined, OfferStateExpired, OfferStateSuperseded:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if the state can transition to the target state.
// SENT is the only non-terminal state: creation and dispatch are atomic, so
// an offer record never exists before its message went out.
func (os OfferState) CanTransitionTo(target OfferState) bool {
	validTransitions := map[OfferState][]OfferState{
		OfferStateSent:       {OfferStateAccepted, OfferStateDeclined, OfferStateExpired, OfferStateSuperseded},
		OfferStateAccepted:   {}, // Terminal state
		OfferStateDeclined:   {}, // Terminal state
		OfferStateExpired:    {}, // Terminal state
		OfferStateSuperseded: {}, // Terminal state
	}

	for _, allowed := range validTransitions[os] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true for every state except SENT
func (os OfferState) IsTerminal() bool {
	return os != OfferStateSent
}

// Offer is one outbound proposal of a specific slot to one waitlist entry.
// At most one offer exists per (job, entry) pair, and at most one offer per
// job ever reaches ACCEPTED.
type Offer struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	JobID     uuid.UUID `json:"job_id" gorm:"type:uuid;not null;uniqueIndex:idx_job_entry"`
	EntryID   uuid.UUID `json:"entry_id" gorm:"type:uuid;not null;uniqueIndex:idx_job_entry"`
	PatientID uuid.UUID `json:"patient_id" gorm:"type:uuid;not null;index"`
	SlotID    uuid.UUID `json:"slot_id" gorm:"type:uuid;not null;index"`

	State     OfferState `json:"state" gorm:"type:varchar(20);not null;index"`
	SentAt    time.Time  `json:"sent_at" gorm:"not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`

	RespondedAt       *time.Time `json:"responded_at,omitempty"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsOutstanding reports whether the offer is still awaiting a reply at the
// given instant
func (o *Offer) IsOutstanding(now time.Time) bool {
	return o.State == OfferStateSent && now.Before(o.ExpiresAt)
}
