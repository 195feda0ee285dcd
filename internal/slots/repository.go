package slots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrSlotAlreadyBooked is returned when a binding write loses to an earlier one
var ErrSlotAlreadyBooked = errors.New("slot already booked")

// Repository interface defines the contract for slot data operations
type Repository interface {
	Create(ctx context.Context, slot *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListUpcoming(ctx context.Context, providerID *uuid.UUID, limit int) ([]Slot, error)

	// BindPatient binds the slot to a patient; the guard on the unbooked row
	// makes the write first-wins under concurrency.
	BindPatient(ctx context.Context, slotID, patientID uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new slot repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, slot *Slot) error {
	if err := r.db.WithContext(ctx).Create(slot).Error; err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	var slot Slot
	err := r.db.WithContext(ctx).First(&slot, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("slot %s not found: %w", id, err)
	}
	return &slot, nil
}

func (r *repository) ListUpcoming(ctx context.Context, providerID *uuid.UUID, limit int) ([]Slot, error) {
	query := r.db.WithContext(ctx).Where("start_time > ?", time.Now())
	if providerID != nil {
		query = query.Where("provider_id = ?", *providerID)
	}

	var slots []Slot
	err := query.Order("start_time asc").Limit(limit).Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return slots, nil
}

func (r *repository) BindPatient(ctx context.Context, slotID, patientID uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&Slot{}).
		Where("id = ? AND booked_patient_id IS NULL", slotID).
		Updates(map[string]interface{}{
			"booked_patient_id": patientID,
			"booked_at":         at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to bind slot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSlotAlreadyBooked
	}
	return nil
}
