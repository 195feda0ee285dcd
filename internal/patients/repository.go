package patients

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository interface defines the contract for patient data operations
type Repository interface {
	Create(ctx context.Context, patient *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, patient *Patient) error
	SetSMSOptOut(ctx context.Context, id uuid.UUID, optOut bool) error
	ListOptedOut(ctx context.Context) ([]uuid.UUID, error)
}

// repository implements the Repository interface
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new patient repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, patient *Patient) error {
	if err := r.db.WithContext(ctx).Create(patient).Error; err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var patient Patient
	err := r.db.WithContext(ctx).First(&patient, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("patient %s not found: %w", id, err)
	}
	return &patient, nil
}

func (r *repository) Update(ctx context.Context, patient *Patient) error {
	if err := r.db.WithContext(ctx).Save(patient).Error; err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	return nil
}

func (r *repository) SetSMSOptOut(ctx context.Context, id uuid.UUID, optOut bool) error {
	result := r.db.WithContext(ctx).Model(&Patient{}).
		Where("id = ?", id).
		Update("sms_opt_out", optOut)
	if result.Error != nil {
		return fmt.Errorf("failed to update sms opt-out: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("patient %s not found", id)
	}
	return nil
}

func (r *repository) ListOptedOut(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&Patient{}).
		Where("sms_opt_out = ?", true).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list opted-out patients: %w", err)
	}
	return ids, nil
}
