package waitlist_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"mindline/internal/patients"
	"mindline/internal/slots"
	"mindline/internal/waitlist"
)

type fakeRepo struct {
	entries map[uuid.UUID]*waitlist.WaitlistEntry
	stats   map[string]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		entries: make(map[uuid.UUID]*waitlist.WaitlistEntry),
		stats:   make(map[string]int64),
	}
}

func (r *fakeRepo) CreateEntry(ctx context.Context, entry *waitlist.WaitlistEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	c := *entry
	r.entries[entry.ID] = &c
	return nil
}

func (r *fakeRepo) GetEntryByID(ctx context.Context, id uuid.UUID) (*waitlist.WaitlistEntry, error) {
	entry, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("waitlist entry %s not found", id)
	}
	c := *entry
	return &c, nil
}

func (r *fakeRepo) UpdateEntry(ctx context.Context, entry *waitlist.WaitlistEntry) error {
	c := *entry
	r.entries[entry.ID] = &c
	return nil
}

func (r *fakeRepo) ListEntries(ctx context.Context, status waitlist.EntryStatus, limit, offset int) ([]waitlist.WaitlistEntry, error) {
	var out []waitlist.WaitlistEntry
	for _, entry := range r.entries {
		if status == "" || entry.Status == status {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListPatientEntries(ctx context.Context, patientID uuid.UUID) ([]waitlist.WaitlistEntry, error) {
	var out []waitlist.WaitlistEntry
	for _, entry := range r.entries {
		if entry.PatientID == patientID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListActiveForProvider(ctx context.Context, providerID uuid.UUID) ([]waitlist.WaitlistEntry, error) {
	var out []waitlist.WaitlistEntry
	for _, entry := range r.entries {
		if entry.Status != waitlist.EntryStatusActive {
			continue
		}
		if entry.PreferredProviderID == nil || *entry.PreferredProviderID == providerID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (r *fakeRepo) ExpireOverdueEntries(ctx context.Context, now time.Time, limit int) (int, error) {
	expired := 0
	for _, entry := range r.entries {
		if entry.Status == waitlist.EntryStatusActive && entry.ExpiresAt != nil && !entry.ExpiresAt.After(now) {
			entry.Status = waitlist.EntryStatusExpired
			expired++
		}
	}
	return expired, nil
}

func (r *fakeRepo) CancelActiveForPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	cancelled := 0
	for _, entry := range r.entries {
		if entry.PatientID == patientID && entry.Status == waitlist.EntryStatusActive {
			entry.Status = waitlist.EntryStatusCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (r *fakeRepo) IncrStat(ctx context.Context, day time.Time, field string) error {
	r.stats[field]++
	return nil
}

func (r *fakeRepo) GetStats(ctx context.Context, day time.Time) (map[string]int64, error) {
	out := make(map[string]int64, len(r.stats))
	for field, n := range r.stats {
		out[field] = n
	}
	return out, nil
}

type fakeDirectory struct {
	patients map[uuid.UUID]*patients.Patient
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{patients: make(map[uuid.UUID]*patients.Patient)}
}

func (d *fakeDirectory) addPatient() *patients.Patient {
	p := &patients.Patient{ID: uuid.New(), FirstName: "Jo", Phone: "+15550001111"}
	d.patients[p.ID] = p
	return p
}

func (d *fakeDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*patients.Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %s not found", id)
	}
	return p, nil
}

func (d *fakeDirectory) IsOptedOut(ctx context.Context, id uuid.UUID) (bool, error) {
	p, ok := d.patients[id]
	if !ok {
		return false, fmt.Errorf("patient %s not found", id)
	}
	return p.SMSOptOut, nil
}

func (d *fakeDirectory) SetSMSOptOut(ctx context.Context, id uuid.UUID) error {
	p, ok := d.patients[id]
	if !ok {
		return fmt.Errorf("patient %s not found", id)
	}
	p.SMSOptOut = true
	return nil
}

func activeEntryFor(patientID uuid.UUID) *waitlist.WaitlistEntry {
	return &waitlist.WaitlistEntry{
		PatientID: patientID,
		Priority:  waitlist.PriorityMedium,
		Modality:  waitlist.EntryModalityAny,
		Status:    waitlist.EntryStatusActive,
	}
}

func TestSetSMSOptOutCancelsAllActiveEntries(t *testing.T) {
	repo := newFakeRepo()
	dir := newFakeDirectory()
	svc := waitlist.NewService(repo, dir, nil)
	ctx := context.Background()

	patient := dir.addPatient()
	other := dir.addPatient()

	first := activeEntryFor(patient.ID)
	second := activeEntryFor(patient.ID)
	matched := activeEntryFor(patient.ID)
	matched.Status = waitlist.EntryStatusMatched
	bystander := activeEntryFor(other.ID)
	for _, entry := range []*waitlist.WaitlistEntry{first, second, matched, bystander} {
		if err := repo.CreateEntry(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}

	if err := svc.SetSMSOptOut(ctx, patient.ID); err != nil {
		t.Fatal(err)
	}

	if !dir.patients[patient.ID].SMSOptOut {
		t.Error("patient not flagged as opted out")
	}
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		if repo.entries[id].Status != waitlist.EntryStatusCancelled {
			t.Errorf("entry %s not cancelled: %s", id, repo.entries[id].Status)
		}
	}
	if repo.entries[matched.ID].Status != waitlist.EntryStatusMatched {
		t.Error("matched entry should be untouched")
	}
	if repo.entries[bystander.ID].Status != waitlist.EntryStatusActive {
		t.Error("other patient's entry should stay active")
	}
}

func TestEligibleEntriesExcludesOptedOutPatients(t *testing.T) {
	repo := newFakeRepo()
	dir := newFakeDirectory()
	svc := waitlist.NewService(repo, dir, nil)
	ctx := context.Background()

	reachable := dir.addPatient()
	silenced := dir.addPatient()
	silenced.SMSOptOut = true

	keep := activeEntryFor(reachable.ID)
	skip := activeEntryFor(silenced.ID)
	for _, entry := range []*waitlist.WaitlistEntry{keep, skip} {
		if err := repo.CreateEntry(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}

	slot := slots.Slot{ID: uuid.New(), ProviderID: uuid.New()}
	eligible, err := svc.EligibleEntries(ctx, slot)
	if err != nil {
		t.Fatal(err)
	}
	if len(eligible) != 1 || eligible[0].ID != keep.ID {
		t.Fatalf("eligible = %v, want only the reachable patient's entry", eligible)
	}
}
