package waitlist

import (
	"context"
	"fmt"
	"log"
	"time"

	"mindline/internal/patients"
	"mindline/internal/slots"

	"github.com/google/uuid"
)

// Service interface defines the contract for waitlist business operations
type Service interface {
	// Core entry operations
	CreateEntry(ctx context.Context, request *CreateEntryRequest) (*WaitlistEntry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error)
	CancelEntry(ctx context.Context, id uuid.UUID) error
	ListEntries(ctx context.Context, status EntryStatus, limit, offset int) ([]WaitlistEntry, error)
	ListPatientEntries(ctx context.Context, patientID uuid.UUID) ([]WaitlistEntry, error)

	// EligibleEntries returns the active entries in the slot's provider scope
	// that may be ranked for it, excluding patients opted out of SMS.
	EligibleEntries(ctx context.Context, slot slots.Slot) ([]WaitlistEntry, error)

	// Background job operations
	ProcessExpiredEntries(ctx context.Context) (int, error)

	// Admin operations
	GetStats(ctx context.Context, day time.Time) (map[string]int64, error)
	RecordMatch(ctx context.Context, entryID uuid.UUID)

	// SetSMSOptOut flags the patient and retires their standing requests;
	// an unreachable patient cannot receive offers on any entry.
	SetSMSOptOut(ctx context.Context, patientID uuid.UUID) error
}

// service implements the Service interface
type service struct {
	repo      Repository
	directory patients.Directory
	config    *ServiceConfig
}

// ServiceConfig contains configuration for the waitlist service
type ServiceConfig struct {
	ExpirySweepBatchSize int
	MaxWaitDaysCeiling   int
}

// DefaultServiceConfig returns default service configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		ExpirySweepBatchSize: 100,
		MaxWaitDaysCeiling:   365,
	}
}

// NewService creates a new waitlist service
func NewService(repo Repository, directory patients.Directory, config *ServiceConfig) Service {
	if config == nil {
		config = DefaultServiceConfig()
	}

	return &service{
		repo:      repo,
		directory: directory,
		config:    config,
	}
}

// CreateEntry adds a patient's standing appointment request to the waitlist
func (s *service) CreateEntry(ctx context.Context, request *CreateEntryRequest) (*WaitlistEntry, error) {
	if err := s.validateCreateRequest(request); err != nil {
		return nil, fmt.Errorf("invalid waitlist request: %w", err)
	}

	// The patient must exist and be reachable before we promise offers
	patient, err := s.directory.GetPatient(ctx, request.PatientID)
	if err != nil {
		return nil, fmt.Errorf("unknown patient: %w", err)
	}
	if patient.Phone == "" {
		return nil, fmt.Errorf("patient %s has no phone on file", patient.ID)
	}

	entry := &WaitlistEntry{
		PatientID:           request.PatientID,
		PreferredProviderID: request.PreferredProviderID,
		Priority:            request.Priority,
		PreferredDays:       request.PreferredDays,
		PreferredTimes:      request.PreferredTimes,
		Modality:            request.Modality,
		MaxWaitDays:         request.MaxWaitDays,
		MinNoticeHours:      request.MinNoticeHours,
		Flexibility:         request.Flexibility,
		Status:              EntryStatusActive,
	}

	if entry.MaxWaitDays > 0 {
		expiresAt := time.Now().AddDate(0, 0, entry.MaxWaitDays)
		entry.ExpiresAt = &expiresAt
	}

	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.repo.IncrStat(ctx, time.Now(), StatEntriesCreated); err != nil {
		log.Printf("Failed to record waitlist stat: %v", err)
	}

	log.Printf("Waitlist entry %s created for patient %s (priority %s)",
		entry.ID, entry.PatientID, entry.Priority)
	return entry, nil
}

func (s *service) GetEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	return s.repo.GetEntryByID(ctx, id)
}

// CancelEntry removes a standing request. Offers already outstanding for the
// entry resolve through the waterfall as declined or expired.
func (s *service) CancelEntry(ctx context.Context, id uuid.UUID) error {
	entry, err := s.repo.GetEntryByID(ctx, id)
	if err != nil {
		return err
	}

	if !entry.Status.CanTransitionTo(EntryStatusCancelled) {
		return fmt.Errorf("cannot cancel waitlist entry in status %s", entry.Status)
	}

	entry.Status = EntryStatusCancelled
	if err := s.repo.UpdateEntry(ctx, entry); err != nil {
		return err
	}

	if err := s.repo.IncrStat(ctx, time.Now(), StatEntriesCancelled); err != nil {
		log.Printf("Failed to record waitlist stat: %v", err)
	}

	log.Printf("Waitlist entry %s cancelled", id)
	return nil
}

func (s *service) ListEntries(ctx context.Context, status EntryStatus, limit, offset int) ([]WaitlistEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListEntries(ctx, status, limit, offset)
}

func (s *service) ListPatientEntries(ctx context.Context, patientID uuid.UUID) ([]WaitlistEntry, error) {
	return s.repo.ListPatientEntries(ctx, patientID)
}

// EligibleEntries assembles the ranker's input. Opted-out patients are
// excluded here so their entries never reach ranking for the SMS channel.
func (s *service) EligibleEntries(ctx context.Context, slot slots.Slot) ([]WaitlistEntry, error) {
	entries, err := s.repo.ListActiveForProvider(ctx, slot.ProviderID)
	if err != nil {
		return nil, err
	}

	eligible := make([]WaitlistEntry, 0, len(entries))
	for _, entry := range entries {
		optedOut, err := s.directory.IsOptedOut(ctx, entry.PatientID)
		if err != nil {
			log.Printf("Failed to check opt-out for patient %s: %v", entry.PatientID, err)
			continue
		}
		if optedOut {
			continue
		}
		eligible = append(eligible, entry)
	}
	return eligible, nil
}

// ProcessExpiredEntries sweeps entries whose standing request has lapsed
func (s *service) ProcessExpiredEntries(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireOverdueEntries(ctx, time.Now(), s.config.ExpirySweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to expire entries: %w", err)
	}

	for i := 0; i < expired; i++ {
		if err := s.repo.IncrStat(ctx, time.Now(), StatEntriesExpired); err != nil {
			log.Printf("Failed to record waitlist stat: %v", err)
			break
		}
	}
	return expired, nil
}

func (s *service) GetStats(ctx context.Context, day time.Time) (map[string]int64, error) {
	return s.repo.GetStats(ctx, day)
}

// RecordMatch bumps the matched counter after the waterfall binds a slot.
// The entry row itself is updated inside the acceptance transaction.
func (s *service) RecordMatch(ctx context.Context, entryID uuid.UUID) {
	if err := s.repo.IncrStat(ctx, time.Now(), StatEntriesMatched); err != nil {
		log.Printf("Failed to record match stat for entry %s: %v", entryID, err)
	}
}

func (s *service) SetSMSOptOut(ctx context.Context, patientID uuid.UUID) error {
	if err := s.directory.SetSMSOptOut(ctx, patientID); err != nil {
		return err
	}

	cancelled, err := s.repo.CancelActiveForPatient(ctx, patientID)
	if err != nil {
		return err
	}
	if cancelled > 0 {
		for i := 0; i < cancelled; i++ {
			if err := s.repo.IncrStat(ctx, time.Now(), StatEntriesCancelled); err != nil {
				log.Printf("Failed to record waitlist stat: %v", err)
				break
			}
		}
		log.Printf("Cancelled %d waitlist entries for opted-out patient %s", cancelled, patientID)
	}
	return nil
}

func (s *service) validateCreateRequest(request *CreateEntryRequest) error {
	if request.PatientID == uuid.Nil {
		return fmt.Errorf("patient ID is required")
	}
	if !request.Priority.IsValid() {
		return fmt.Errorf("invalid priority tier %q", request.Priority)
	}
	if !request.Modality.IsValid() {
		return fmt.Errorf("invalid modality %q", request.Modality)
	}
	if request.Flexibility < 0 || request.Flexibility > 100 {
		return fmt.Errorf("flexibility must be between 0 and 100")
	}
	if request.MaxWaitDays < 0 || request.MaxWaitDays > s.config.MaxWaitDaysCeiling {
		return fmt.Errorf("max wait days must be between 0 and %d", s.config.MaxWaitDaysCeiling)
	}
	if request.MinNoticeHours < 0 {
		return fmt.Errorf("min notice hours cannot be negative")
	}
	return nil
}
