package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryStore persists the outbound delivery audit trail
type DeliveryStore interface {
	Create(ctx context.Context, record *DeliveryRecord) error
	ListForJob(ctx context.Context, jobID uuid.UUID) ([]DeliveryRecord, error)
	ListRecent(ctx context.Context, limit, offset int) ([]DeliveryRecord, int64, error)
}

type deliveryStore struct {
	db *gorm.DB
}

// NewDeliveryStore creates a PostgreSQL-backed delivery store
func NewDeliveryStore(db *gorm.DB) DeliveryStore {
	return &deliveryStore{db: db}
}

func (s *deliveryStore) Create(ctx context.Context, record *DeliveryRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create delivery record: %w", err)
	}
	return nil
}

func (s *deliveryStore) ListForJob(ctx context.Context, jobID uuid.UUID) ([]DeliveryRecord, error) {
	var records []DeliveryRecord
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries for job: %w", err)
	}
	return records, nil
}

func (s *deliveryStore) ListRecent(ctx context.Context, limit, offset int) ([]DeliveryRecord, int64, error) {
	var records []DeliveryRecord
	var total int64

	query := s.db.WithContext(ctx).Model(&DeliveryRecord{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count delivery records: %w", err)
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list delivery records: %w", err)
	}
	return records, total, nil
}
