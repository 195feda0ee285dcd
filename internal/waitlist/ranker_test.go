package waitlist_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"mindline/internal/slots"
	"mindline/internal/waitlist"
)

var rankNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // a Monday

func tuesdayMorningSlot() slots.Slot {
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC) // Tuesday 10:00
	return slots.Slot{
		ID:              uuid.New(),
		ProviderID:      uuid.New(),
		StartTime:       start,
		EndTime:         start.Add(50 * time.Minute),
		Modality:        slots.ModalityTelehealth,
		AppointmentType: "INDIVIDUAL",
	}
}

func activeEntry(overrides func(*waitlist.WaitlistEntry)) waitlist.WaitlistEntry {
	expires := rankNow.AddDate(0, 0, 30)
	entry := waitlist.WaitlistEntry{
		ID:          uuid.New(),
		PatientID:   uuid.New(),
		Priority:    waitlist.PriorityMedium,
		Modality:    waitlist.EntryModalityAny,
		MaxWaitDays: 30,
		Flexibility: 50,
		Status:      waitlist.EntryStatusActive,
		CreatedAt:   rankNow.AddDate(0, 0, -10),
		ExpiresAt:   &expires,
	}
	if overrides != nil {
		overrides(&entry)
	}
	return entry
}

func rank(t *testing.T, slot slots.Slot, entries []waitlist.WaitlistEntry) []uuid.UUID {
	t.Helper()
	return waitlist.Rank(slot, entries, rankNow, waitlist.RankConfig{HighFlexibilityThreshold: 75})
}

func TestRankFiltersInactiveAndExpired(t *testing.T) {
	slot := tuesdayMorningSlot()

	cancelled := activeEntry(func(e *waitlist.WaitlistEntry) { e.Status = waitlist.EntryStatusCancelled })
	expired := activeEntry(func(e *waitlist.WaitlistEntry) {
		past := rankNow.AddDate(0, 0, -1)
		e.ExpiresAt = &past
	})
	kept := activeEntry(nil)

	got := rank(t, slot, []waitlist.WaitlistEntry{cancelled, expired, kept})
	if len(got) != 1 || got[0] != kept.ID {
		t.Fatalf("expected only the active entry, got %v", got)
	}
}

func TestRankFiltersModalityAndProvider(t *testing.T) {
	slot := tuesdayMorningSlot() // telehealth

	inPersonOnly := activeEntry(func(e *waitlist.WaitlistEntry) { e.Modality = waitlist.EntryModalityInPerson })
	otherProvider := activeEntry(func(e *waitlist.WaitlistEntry) {
		other := uuid.New()
		e.PreferredProviderID = &other
	})
	sameProvider := activeEntry(func(e *waitlist.WaitlistEntry) {
		pid := slot.ProviderID
		e.PreferredProviderID = &pid
	})
	anyProvider := activeEntry(nil)

	got := rank(t, slot, []waitlist.WaitlistEntry{inPersonOnly, otherProvider, sameProvider, anyProvider})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	for _, id := range got {
		if id == inPersonOnly.ID || id == otherProvider.ID {
			t.Fatalf("filtered entry %s leaked into ranking", id)
		}
	}
}

func TestRankFiltersMinNotice(t *testing.T) {
	slot := tuesdayMorningSlot()
	// Slot starts in ~193 hours from rankNow.
	tooShort := activeEntry(func(e *waitlist.WaitlistEntry) { e.MinNoticeHours = 300 })
	fine := activeEntry(func(e *waitlist.WaitlistEntry) { e.MinNoticeHours = 24 })

	got := rank(t, slot, []waitlist.WaitlistEntry{tooShort, fine})
	if len(got) != 1 || got[0] != fine.ID {
		t.Fatalf("expected only the entry with satisfied notice, got %v", got)
	}
}

func TestRankSchedulePreferenceAdvisoryForHighFlexibility(t *testing.T) {
	slot := tuesdayMorningSlot() // TUESDAY MORNING

	// Prefers Fridays: outside the slot window.
	rigid := activeEntry(func(e *waitlist.WaitlistEntry) {
		e.PreferredDays = waitlist.StringList{"FRIDAY"}
		e.Flexibility = 40
	})
	flexible := activeEntry(func(e *waitlist.WaitlistEntry) {
		e.PreferredDays = waitlist.StringList{"FRIDAY"}
		e.Flexibility = 90
	})
	inWindow := activeEntry(func(e *waitlist.WaitlistEntry) {
		e.PreferredDays = waitlist.StringList{"TUESDAY"}
		e.PreferredTimes = waitlist.StringList{"MORNING"}
		e.Flexibility = 10
	})

	got := rank(t, slot, []waitlist.WaitlistEntry{rigid, flexible, inWindow})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %v", got)
	}
	// Same tier: the in-window entry outranks the advisory one despite much
	// lower flexibility.
	if got[0] != inWindow.ID || got[1] != flexible.ID {
		t.Fatalf("expected [inWindow, flexible], got %v", got)
	}
}

func TestRankOrdersByTierThenFlexibilityThenAge(t *testing.T) {
	slot := tuesdayMorningSlot()

	urgent := activeEntry(func(e *waitlist.WaitlistEntry) {
		e.Priority = waitlist.PriorityUrgent
		e.Flexibility = 0
	})
	highFlexible := activeEntry(func(e *waitlist.WaitlistEntry) {
		e.Priority = waitlist.PriorityHigh
		e.Flexibility = 80
	})
	highRigid := activeEntry(func(e *waitlist.WaitlistEntry) {
		e.Priority = waitlist.PriorityHigh
		e.Flexibility = 20
	})
	oldMedium := activeEntry(func(e *waitlist.WaitlistEntry) {
		e.Flexibility = 50
		e.CreatedAt = rankNow.AddDate(0, 0, -60)
	})
	newMedium := activeEntry(func(e *waitlist.WaitlistEntry) {
		e.Flexibility = 50
		e.CreatedAt = rankNow.AddDate(0, 0, -1)
	})

	got := rank(t, slot, []waitlist.WaitlistEntry{newMedium, highRigid, oldMedium, urgent, highFlexible})
	want := []uuid.UUID{urgent.ID, highFlexible.ID, highRigid.ID, oldMedium.ID, newMedium.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestRankDeterministicTiebreak(t *testing.T) {
	slot := tuesdayMorningSlot()
	created := rankNow.AddDate(0, 0, -5)

	a := activeEntry(func(e *waitlist.WaitlistEntry) { e.CreatedAt = created })
	b := activeEntry(func(e *waitlist.WaitlistEntry) { e.CreatedAt = created })

	first := rank(t, slot, []waitlist.WaitlistEntry{a, b})
	second := rank(t, slot, []waitlist.WaitlistEntry{b, a})
	if first[0] != second[0] || first[1] != second[1] {
		t.Fatalf("ranking is input-order dependent: %v vs %v", first, second)
	}
}
