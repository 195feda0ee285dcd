package waterfall_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"mindline/internal/waterfall"
)

func TestJobStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to waterfall.JobStatus
		allowed  bool
	}{
		{waterfall.JobStatusPending, waterfall.JobStatusInProgress, true},
		{waterfall.JobStatusPending, waterfall.JobStatusCompleted, true},
		{waterfall.JobStatusPending, waterfall.JobStatusCancelled, true},
		{waterfall.JobStatusInProgress, waterfall.JobStatusCompleted, true},
		{waterfall.JobStatusInProgress, waterfall.JobStatusCancelled, true},
		{waterfall.JobStatusInProgress, waterfall.JobStatusPending, false},
		{waterfall.JobStatusCompleted, waterfall.JobStatusInProgress, false},
		{waterfall.JobStatusCancelled, waterfall.JobStatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestOfferStateOnlySentIsOpen(t *testing.T) {
	terminal := []waterfall.OfferState{
		waterfall.OfferStateAccepted,
		waterfall.OfferStateDeclined,
		waterfall.OfferStateExpired,
		waterfall.OfferStateSuperseded,
	}
	for _, state := range terminal {
		if !state.IsTerminal() {
			t.Errorf("%s should be terminal", state)
		}
		if state.CanTransitionTo(waterfall.OfferStateSent) {
			t.Errorf("%s must not reopen", state)
		}
	}
	if waterfall.OfferStateSent.IsTerminal() {
		t.Error("SENT should not be terminal")
	}
	for _, state := range terminal {
		if !waterfall.OfferStateSent.CanTransitionTo(state) {
			t.Errorf("SENT -> %s should be allowed", state)
		}
	}
}

func TestOfferIsOutstanding(t *testing.T) {
	now := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)
	offer := waterfall.Offer{State: waterfall.OfferStateSent, ExpiresAt: now.Add(10 * time.Minute)}

	if !offer.IsOutstanding(now) {
		t.Error("fresh offer should be outstanding")
	}
	if offer.IsOutstanding(now.Add(10 * time.Minute)) {
		t.Error("offer at its deadline is no longer outstanding")
	}
	offer.State = waterfall.OfferStateDeclined
	if offer.IsOutstanding(now) {
		t.Error("resolved offer should not be outstanding")
	}
}

func TestAttemptLogAttemptsFor(t *testing.T) {
	entry := uuid.New()
	at := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)
	log := waterfall.AttemptLog{
		{Index: 0, EntryID: entry, At: at, Note: "provider error 503"},
		{Index: 0, EntryID: entry, At: at.Add(time.Minute), Note: "provider error 503"},
		{Index: 2, EntryID: uuid.New(), At: at, Note: "invalid number", Permanent: true},
	}

	if got := log.AttemptsFor(0); got != 2 {
		t.Errorf("AttemptsFor(0) = %d, want 2", got)
	}
	if got := log.AttemptsFor(1); got != 0 {
		t.Errorf("AttemptsFor(1) = %d, want 0", got)
	}
	if got := log.AttemptsFor(2); got != 1 {
		t.Errorf("AttemptsFor(2) = %d, want 1", got)
	}
}

func TestJobCurrentCandidate(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	job := waterfall.WaterfallJob{CandidateIDs: waterfall.UUIDList{a, b}}

	if got, ok := job.CurrentCandidate(); !ok || got != a {
		t.Errorf("index 0: got %s, %v", got, ok)
	}
	job.CurrentIndex = 1
	if got, ok := job.CurrentCandidate(); !ok || got != b {
		t.Errorf("index 1: got %s, %v", got, ok)
	}
	job.CurrentIndex = 2
	if _, ok := job.CurrentCandidate(); ok {
		t.Error("past the end should report no candidate")
	}
}
