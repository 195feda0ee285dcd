package patients

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Directory is the patient-profile collaborator surface the engine consumes:
// contact lookup and the durable SMS opt-out flag.
type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	IsOptedOut(ctx context.Context, id uuid.UUID) (bool, error)
	SetSMSOptOut(ctx context.Context, id uuid.UUID) error
}

// Service interface defines the contract for patient directory operations
type Service interface {
	Directory
	CreatePatient(ctx context.Context, patient *Patient) error
}

type service struct {
	repo Repository
}

// NewService creates a new patient directory service
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreatePatient(ctx context.Context, patient *Patient) error {
	return s.repo.Create(ctx, patient)
}

func (s *service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) IsOptedOut(ctx context.Context, id uuid.UUID) (bool, error) {
	patient, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return patient.SMSOptOut, nil
}

func (s *service) SetSMSOptOut(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SetSMSOptOut(ctx, id, true); err != nil {
		return err
	}
	log.Printf("Patient %s opted out of SMS notifications", id)
	return nil
}
