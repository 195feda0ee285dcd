package waterfall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mindline/internal/slots"
	"mindline/internal/waitlist"
)

var (
	ErrJobNotFound      = errors.New("waterfall job not found")
	ErrOfferNotPending  = errors.New("offer is no longer pending")
	ErrJobAlreadyClosed = errors.New("waterfall job already closed")
	// ErrJobConflict is returned by UpdateJob when the row no longer accepts
	// the write: it went terminal or its index moved past the caller's copy.
	ErrJobConflict = errors.New("waterfall job modified concurrently")
)

// Store is the persistence boundary for jobs and offers. Every scheduler
// decision reads job state through it so that restarts resume cleanly.
type Store interface {
	CreateJob(ctx context.Context, job *WaterfallJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*WaterfallJob, error)
	// UpdateJob is a guarded write: only a non-terminal row whose
	// current_index has not moved past the caller's copy accepts it.
	// ErrJobConflict means another writer got there first; status and index
	// stay monotonic no matter how stale the caller's copy is.
	UpdateJob(ctx context.Context, job *WaterfallJob) error
	ListJobs(ctx context.Context, status JobStatus, limit, offset int) ([]WaterfallJob, int64, error)
	ListRunnableJobs(ctx context.Context, limit int) ([]WaterfallJob, error)

	CreateOffer(ctx context.Context, offer *Offer) error
	// GetOffer returns (nil, nil) when no offer exists for the pair.
	GetOffer(ctx context.Context, jobID, entryID uuid.UUID) (*Offer, error)
	UpdateOffer(ctx context.Context, offer *Offer) error
	ListJobOffers(ctx context.Context, jobID uuid.UUID) ([]Offer, error)

	GetSlot(ctx context.Context, id uuid.UUID) (*slots.Slot, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*waitlist.WaitlistEntry, error)

	// CommitAcceptance finalizes a winning reply in one transaction: the slot
	// is bound first-wins, the offer flips to ACCEPTED, every sibling offer
	// still SENT is SUPERSEDED, the entry is MATCHED and the job completes
	// with outcome MATCHED. Returns slots.ErrSlotAlreadyBooked when the slot
	// was taken outside this job.
	CommitAcceptance(ctx context.Context, job *WaterfallJob, offer *Offer, now time.Time) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a new waterfall store backed by PostgreSQL
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreateJob(ctx context.Context, job *WaterfallJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create waterfall job: %w", err)
	}
	return nil
}

func (s *gormStore) GetJob(ctx context.Context, id uuid.UUID) (*WaterfallJob, error) {
	var job WaterfallJob
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get waterfall job: %w", err)
	}
	return &job, nil
}

func (s *gormStore) UpdateJob(ctx context.Context, job *WaterfallJob) error {
	result := s.db.WithContext(ctx).Model(&WaterfallJob{}).
		Where("id = ? AND status IN ? AND current_index <= ?",
			job.ID, []JobStatus{JobStatusPending, JobStatusInProgress}, job.CurrentIndex).
		Updates(map[string]interface{}{
			"current_index":      job.CurrentIndex,
			"status":             job.Status,
			"outcome":            job.Outcome,
			"error_log":          job.ErrorLog,
			"last_offer_sent_at": job.LastOfferSentAt,
			"completed_at":       job.CompletedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update waterfall job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobConflict
	}
	return nil
}

func (s *gormStore) ListJobs(ctx context.Context, status JobStatus, limit, offset int) ([]WaterfallJob, int64, error) {
	var jobs []WaterfallJob
	var total int64

	query := s.db.WithContext(ctx).Model(&WaterfallJob{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count waterfall jobs: %w", err)
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list waterfall jobs: %w", err)
	}
	return jobs, total, nil
}

func (s *gormStore) ListRunnableJobs(ctx context.Context, limit int) ([]WaterfallJob, error) {
	var jobs []WaterfallJob
	err := s.db.WithContext(ctx).
		Where("status IN ?", []JobStatus{JobStatusPending, JobStatusInProgress}).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runnable jobs: %w", err)
	}
	return jobs, nil
}

func (s *gormStore) CreateOffer(ctx context.Context, offer *Offer) error {
	if err := s.db.WithContext(ctx).Create(offer).Error; err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return nil
}

func (s *gormStore) GetOffer(ctx context.Context, jobID, entryID uuid.UUID) (*Offer, error) {
	var offer Offer
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND entry_id = ?", jobID, entryID).
		First(&offer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	return &offer, nil
}

func (s *gormStore) UpdateOffer(ctx context.Context, offer *Offer) error {
	if err := s.db.WithContext(ctx).Save(offer).Error; err != nil {
		return fmt.Errorf("failed to update offer: %w", err)
	}
	return nil
}

func (s *gormStore) ListJobOffers(ctx context.Context, jobID uuid.UUID) ([]Offer, error) {
	var offers []Offer
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("sent_at ASC").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list job offers: %w", err)
	}
	return offers, nil
}

func (s *gormStore) GetSlot(ctx context.Context, id uuid.UUID) (*slots.Slot, error) {
	var slot slots.Slot
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&slot).Error
	if err != nil {
		return nil, fmt.Errorf("slot %s not found: %w", id, err)
	}
	return &slot, nil
}

func (s *gormStore) GetEntry(ctx context.Context, id uuid.UUID) (*waitlist.WaitlistEntry, error) {
	var entry waitlist.WaitlistEntry
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("waitlist entry %s not found: %w", id, err)
	}
	return &entry, nil
}

func (s *gormStore) CommitAcceptance(ctx context.Context, job *WaterfallJob, offer *Offer, now time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Slot binding goes first: the guarded update is what makes two
		// jobs (or a manual booking) racing for the same slot safe.
		res := tx.Model(&slots.Slot{}).
			Where("id = ? AND booked_patient_id IS NULL", job.SlotID).
			Updates(map[string]interface{}{
				"booked_patient_id": offer.PatientID,
				"booked_at":         now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to bind slot: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return slots.ErrSlotAlreadyBooked
		}

		res = tx.Model(&Offer{}).
			Where("id = ? AND state = ?", offer.ID, OfferStateSent).
			Updates(map[string]interface{}{
				"state":        OfferStateAccepted,
				"responded_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to accept offer: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrOfferNotPending
		}

		if err := tx.Model(&Offer{}).
			Where("job_id = ? AND id <> ? AND state = ?", job.ID, offer.ID, OfferStateSent).
			Update("state", OfferStateSuperseded).Error; err != nil {
			return fmt.Errorf("failed to supersede sibling offers: %w", err)
		}

		if err := tx.Model(&waitlist.WaitlistEntry{}).
			Where("id = ?", offer.EntryID).
			Update("status", waitlist.EntryStatusMatched).Error; err != nil {
			return fmt.Errorf("failed to mark entry matched: %w", err)
		}

		res = tx.Model(&WaterfallJob{}).
			Where("id = ? AND status IN ?", job.ID, []JobStatus{JobStatusPending, JobStatusInProgress}).
			Updates(map[string]interface{}{
				"status":       JobStatusCompleted,
				"outcome":      OutcomeMatched,
				"completed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrJobAlreadyClosed
		}

		return nil
	})
	if err != nil {
		return err
	}

	// Reflect the committed state on the callers' copies.
	offer.State = OfferStateAccepted
	offer.RespondedAt = &now
	job.Status = JobStatusCompleted
	job.Outcome = OutcomeMatched
	job.CompletedAt = &now
	return nil
}
