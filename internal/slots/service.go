package slots

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// WaterfallStarter kicks off an offer waterfall for a newly available slot
// (to avoid import cycles; implemented by the waterfall service)
type WaterfallStarter interface {
	StartForSlot(ctx context.Context, slot Slot) (uuid.UUID, error)
}

// Service interface defines the contract for slot business operations
type Service interface {
	// OpenSlot records a newly available slot and starts its waterfall run
	OpenSlot(ctx context.Context, slot *Slot) (uuid.UUID, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListUpcoming(ctx context.Context, providerID *uuid.UUID, limit int) ([]Slot, error)

	// BookDirect binds the slot to a patient outside any waterfall run, e.g.
	// when staff fill it over the phone. An offer waterfall racing this
	// booking observes ErrSlotAlreadyBooked and winds down with courtesy
	// notices.
	BookDirect(ctx context.Context, slotID, patientID uuid.UUID) (*Slot, error)
}

type service struct {
	repo      Repository
	waterfall WaterfallStarter
}

// NewService creates a new slot service
func NewService(repo Repository, waterfall WaterfallStarter) Service {
	return &service{
		repo:      repo,
		waterfall: waterfall,
	}
}

// OpenSlot persists the slot and opens a waterfall run for it. The returned
// id is the waterfall job created for the slot.
func (s *service) OpenSlot(ctx context.Context, slot *Slot) (uuid.UUID, error) {
	if err := s.validateSlot(slot); err != nil {
		return uuid.Nil, fmt.Errorf("invalid slot: %w", err)
	}

	if err := s.repo.Create(ctx, slot); err != nil {
		return uuid.Nil, err
	}

	jobID, err := s.waterfall.StartForSlot(ctx, *slot)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to start waterfall for slot %s: %w", slot.ID, err)
	}

	log.Printf("Slot %s (%s %s) opened, waterfall job %s started",
		slot.ID, slot.Weekday(), slot.DayPart(), jobID)
	return jobID, nil
}

func (s *service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListUpcoming(ctx context.Context, providerID *uuid.UUID, limit int) ([]Slot, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListUpcoming(ctx, providerID, limit)
}

func (s *service) BookDirect(ctx context.Context, slotID, patientID uuid.UUID) (*Slot, error) {
	if err := s.repo.BindPatient(ctx, slotID, patientID, time.Now()); err != nil {
		return nil, err
	}

	log.Printf("Slot %s booked directly for patient %s", slotID, patientID)
	return s.repo.GetByID(ctx, slotID)
}

func (s *service) validateSlot(slot *Slot) error {
	if slot.ProviderID == uuid.Nil {
		return fmt.Errorf("provider ID is required")
	}
	if !slot.Modality.IsValid() {
		return fmt.Errorf("invalid modality %q", slot.Modality)
	}
	if slot.StartTime.IsZero() || slot.EndTime.IsZero() {
		return fmt.Errorf("start and end times are required")
	}
	if !slot.EndTime.After(slot.StartTime) {
		return fmt.Errorf("end time must be after start time")
	}
	if slot.StartTime.Before(time.Now()) {
		return fmt.Errorf("slot start time is in the past")
	}
	return nil
}
