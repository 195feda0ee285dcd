package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"mindline/internal/patients"
	"mindline/internal/shared/config"
	"mindline/internal/shared/database"
	"mindline/internal/waitlist"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	cfg := config.Load()
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	gofakeit.Seed(time.Now().UnixNano())

	ctx := context.Background()
	patientIDs, providerIDs, err := seedPatients(ctx, db, 200)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedWaitlist(ctx, db, patientIDs, providerIDs); err != nil {
		log.Fatalf("seed waitlist: %v", err)
	}

	log.Println("seed complete")
}

func seedPatients(ctx context.Context, db *database.DB, count int) ([]uuid.UUID, []uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	repo := patients.NewRepository(db.GetPostgreSQL())
	ids := make([]uuid.UUID, 0, count)

	for i := 0; i < count; i++ {
		patient := &patients.Patient{
			ID:        uuid.New(),
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
			Phone:     gofakeit.Phone(),
			Email:     gofakeit.Email(),
			// A small share of patients have standing opt-outs.
			SMSOptOut: gofakeit.Number(0, 19) == 0,
		}
		if err := repo.Create(ctx, patient); err != nil {
			return nil, nil, err
		}
		ids = append(ids, patient.ID)
	}

	providerIDs := make([]uuid.UUID, 8)
	for i := range providerIDs {
		providerIDs[i] = uuid.New()
	}

	log.Println("patients seeded")
	return ids, providerIDs, nil
}

func seedWaitlist(ctx context.Context, db *database.DB, patientIDs, providerIDs []uuid.UUID) error {
	log.Printf("seeding waitlist entries for %d patients", len(patientIDs))

	repo := waitlist.NewRepository(db.GetPostgreSQL(), db.GetRedisClient())

	tiers := []waitlist.PriorityTier{
		waitlist.PriorityUrgent,
		waitlist.PriorityHigh,
		waitlist.PriorityMedium,
		waitlist.PriorityLow,
	}
	modalities := []waitlist.EntryModality{
		waitlist.EntryModalityTelehealth,
		waitlist.EntryModalityInPerson,
		waitlist.EntryModalityAny,
	}
	days := []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY"}
	times := []string{"MORNING", "AFTERNOON", "EVENING"}

	now := time.Now()
	for _, patientID := range patientIDs {
		// Roughly two thirds of patients are waiting for an earlier slot.
		if gofakeit.Number(0, 2) == 0 {
			continue
		}

		maxWaitDays := gofakeit.Number(7, 90)
		expiresAt := now.AddDate(0, 0, maxWaitDays)
		entry := &waitlist.WaitlistEntry{
			ID:             uuid.New(),
			PatientID:      patientID,
			Priority:       tiers[gofakeit.Number(0, len(tiers)-1)],
			Modality:       modalities[gofakeit.Number(0, len(modalities)-1)],
			PreferredDays:  pickSome(days),
			PreferredTimes: pickSome(times),
			MaxWaitDays:    maxWaitDays,
			MinNoticeHours: gofakeit.Number(0, 48),
			Flexibility:    gofakeit.Number(0, 100),
			Status:         waitlist.EntryStatusActive,
			ExpiresAt:      &expiresAt,
		}
		if gofakeit.Bool() {
			providerID := providerIDs[gofakeit.Number(0, len(providerIDs)-1)]
			entry.PreferredProviderID = &providerID
		}

		if err := repo.CreateEntry(ctx, entry); err != nil {
			return err
		}
	}

	log.Println("waitlist entries seeded")
	return nil
}

func pickSome(values []string) waitlist.StringList {
	picked := waitlist.StringList{}
	for _, v := range values {
		if gofakeit.Bool() {
			picked = append(picked, v)
		}
	}
	return picked
}
