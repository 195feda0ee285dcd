package waitlist

import (
	"context"
	"fmt"
	"time"

	"mindline/internal/shared/constants"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Stat counter fields tracked per practice day
const (
	StatEntriesCreated   = "entries_created"
	StatEntriesCancelled = "entries_cancelled"
	StatEntriesExpired   = "entries_expired"
	StatEntriesMatched   = "entries_matched"
)

// Repository interface defines the contract for waitlist data operations
type Repository interface {
	// Database operations
	CreateEntry(ctx context.Context, entry *WaitlistEntry) error
	GetEntryByID(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error)
	UpdateEntry(ctx context.Context, entry *WaitlistEntry) error
	ListEntries(ctx context.Context, status EntryStatus, limit, offset int) ([]WaitlistEntry, error)
	ListPatientEntries(ctx context.Context, patientID uuid.UUID) ([]WaitlistEntry, error)

	// ListActiveForProvider returns active entries in a provider's scope:
	// those preferring the provider plus those accepting any provider.
	ListActiveForProvider(ctx context.Context, providerID uuid.UUID) ([]WaitlistEntry, error)

	// Batch operations
	ExpireOverdueEntries(ctx context.Context, now time.Time, limit int) (int, error)
	CancelActiveForPatient(ctx context.Context, patientID uuid.UUID) (int, error)

	// Daily stat counters (Redis)
	IncrStat(ctx context.Context, day time.Time, field string) error
	GetStats(ctx context.Context, day time.Time) (map[string]int64, error)
}

// repository implements the Repository interface
type repository struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewRepository creates a new waitlist repository
func NewRepository(db *gorm.DB, redisClient *redis.Client) Repository {
	return &repository{
		db:    db,
		redis: redisClient,
	}
}

func (r *repository) CreateEntry(ctx context.Context, entry *WaitlistEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}
	return nil
}

func (r *repository) GetEntryByID(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	var entry WaitlistEntry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("waitlist entry %s not found: %w", id, err)
	}
	return &entry, nil
}

func (r *repository) UpdateEntry(ctx context.Context, entry *WaitlistEntry) error {
	if err := r.db.WithContext(ctx).Save(entry).Error; err != nil {
		return fmt.Errorf("failed to update waitlist entry: %w", err)
	}
	return nil
}

func (r *repository) ListEntries(ctx context.Context, status EntryStatus, limit, offset int) ([]WaitlistEntry, error) {
	query := r.db.WithContext(ctx).Model(&WaitlistEntry{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var entries []WaitlistEntry
	err := query.Order("created_at asc").Limit(limit).Offset(offset).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	return entries, nil
}

func (r *repository) ListPatientEntries(ctx context.Context, patientID uuid.UUID) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list patient entries: %w", err)
	}
	return entries, nil
}

func (r *repository) ListActiveForProvider(ctx context.Context, providerID uuid.UUID) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("status = ?", EntryStatusActive).
		Where("preferred_provider_id IS NULL OR preferred_provider_id = ?", providerID).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active entries: %w", err)
	}
	return entries, nil
}

func (r *repository) ExpireOverdueEntries(ctx context.Context, now time.Time, limit int) (int, error) {
	// Batched so one sweep cannot hold a long-running update over the table
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&WaitlistEntry{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", EntryStatusActive, now).
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find overdue entries: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Model(&WaitlistEntry{}).
		Where("id IN ?", ids).
		Update("status", EntryStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire entries: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (r *repository) CancelActiveForPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	result := r.db.WithContext(ctx).Model(&WaitlistEntry{}).
		Where("patient_id = ? AND status = ?", patientID, EntryStatusActive).
		Update("status", EntryStatusCancelled)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel entries for patient %s: %w", patientID, result.Error)
	}
	return int(result.RowsAffected), nil
}

func (r *repository) IncrStat(ctx context.Context, day time.Time, field string) error {
	key := constants.WaitlistStatsKey(day)
	pipe := r.redis.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	pipe.Expire(ctx, key, constants.TTL_WAITLIST_STATS)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment stat %s: %w", field, err)
	}
	return nil
}

func (r *repository) GetStats(ctx context.Context, day time.Time) (map[string]int64, error) {
	raw, err := r.redis.HGetAll(ctx, constants.WaitlistStatsKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read waitlist stats: %w", err)
	}

	stats := make(map[string]int64, len(raw))
	for field, value := range raw {
		var n int64
		fmt.Sscanf(value, "%d", &n)
		stats[field] = n
	}
	return stats, nil
}
