package waterfall_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"mindline/internal/waitlist"
	"mindline/internal/waterfall"
)

func TestResolveAcceptCommitsMatch(t *testing.T) {
	e := newTestEnv(t)
	slot := e.addSlot()
	winner, loser := e.addEntry(), e.addEntry()
	job := e.newJob(slot, winner, loser)

	e.advance(job.ID)
	e.now = e.now.Add(2 * time.Minute)

	outcome, err := e.reconciler.Resolve(context.Background(), job.ID, winner.ID, waterfall.ResponseAccept, e.now)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != waterfall.ResolutionAccepted {
		t.Fatalf("expected ACCEPTED, got %s", outcome)
	}

	got := e.job(job.ID)
	if got.Status != waterfall.JobStatusCompleted || got.Outcome != waterfall.OutcomeMatched {
		t.Fatalf("job not completed as matched: %s/%s", got.Status, got.Outcome)
	}
	if e.offer(job.ID, winner.ID).State != waterfall.OfferStateAccepted {
		t.Fatalf("winning offer not accepted")
	}

	boundSlot := e.store.slots[slot.ID]
	if boundSlot.BookedPatientID == nil || *boundSlot.BookedPatientID != winner.PatientID {
		t.Fatalf("slot not bound to the accepting patient")
	}
	if e.store.entries[winner.ID].Status != waitlist.EntryStatusMatched {
		t.Fatalf("entry not marked matched")
	}

	if len(e.matches.matched) != 1 || e.matches.matched[0] != winner.ID {
		t.Fatalf("match not recorded: %v", e.matches.matched)
	}
	outcomes := e.reporter.reported()
	if len(outcomes) != 1 || outcomes[0] != waterfall.OutcomeMatched {
		t.Fatalf("matched outcome not reported: %v", outcomes)
	}
}

func TestResolveDeclineAdvancesImmediately(t *testing.T) {
	e := newTestEnv(t)
	slot := e.addSlot()
	first, second := e.addEntry(), e.addEntry()
	job := e.newJob(slot, first, second)

	e.advance(job.ID)
	e.now = e.now.Add(time.Minute)

	outcome, err := e.reconciler.Resolve(context.Background(), job.ID, first.ID, waterfall.ResponseDecline, e.now)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != waterfall.ResolutionDeclined {
		t.Fatalf("expected DECLINED, got %s", outcome)
	}

	declined := e.offer(job.ID, first.ID)
	if declined.State != waterfall.OfferStateDeclined || declined.RespondedAt == nil {
		t.Fatalf("declined offer not recorded: %+v", declined)
	}

	// The next offer goes out in the same pass, not on the next tick.
	if e.messenger.sentCount() != 2 || e.messenger.lastSent().Entry.ID != second.ID {
		t.Fatalf("decline did not trigger the next dispatch")
	}
}

func TestResolveOptOutFlagsPatient(t *testing.T) {
	e := newTestEnv(t)
	slot := e.addSlot()
	first, second := e.addEntry(), e.addEntry()
	job := e.newJob(slot, first, second)

	e.advance(job.ID)
	e.now = e.now.Add(time.Minute)

	outcome, err := e.reconciler.Resolve(context.Background(), job.ID, first.ID, waterfall.ResponseOptOut, e.now)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != waterfall.ResolutionOptedOut {
		t.Fatalf("expected OPTED_OUT, got %s", outcome)
	}

	if !e.optOuts.optedOut[first.PatientID] {
		t.Fatalf("patient not flagged as opted out")
	}
	if e.offer(job.ID, first.ID).State != waterfall.OfferStateDeclined {
		t.Fatalf("opt-out offer should resolve as declined")
	}
	if e.messenger.sentCount() != 2 || e.messenger.lastSent().Entry.ID != second.ID {
		t.Fatalf("opt-out did not move the waterfall forward")
	}
}

func TestResolveLateResponseExpiresOffer(t *testing.T) {
	e := newTestEnv(t)
	slot := e.addSlot()
	first, second := e.addEntry(), e.addEntry()
	job := e.newJob(slot, first, second)

	e.advance(job.ID)
	e.now = e.now.Add(15 * time.Minute) // past the 10 minute window

	_, err := e.reconciler.Resolve(context.Background(), job.ID, first.ID, waterfall.ResponseAccept, e.now)
	if !errors.Is(err, waterfall.ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if e.offer(job.ID, first.ID).State != waterfall.OfferStateExpired {
		t.Fatalf("late reply should expire the offer")
	}
	// The expiry still drives the run forward (interval already elapsed).
	if e.messenger.sentCount() != 2 || e.messenger.lastSent().Entry.ID != second.ID {
		t.Fatalf("late reply did not advance the waterfall")
	}
}

func TestResolveDuplicateResponseRejected(t *testing.T) {
	e := newTestEnv(t)
	slot := e.addSlot()
	first, second := e.addEntry(), e.addEntry()
	job := e.newJob(slot, first, second)

	e.advance(job.ID)
	e.now = e.now.Add(time.Minute)

	if _, err := e.reconciler.Resolve(context.Background(), job.ID, first.ID, waterfall.ResponseDecline, e.now); err != nil {
		t.Fatal(err)
	}
	_, err := e.reconciler.Resolve(context.Background(), job.ID, first.ID, waterfall.ResponseDecline, e.now)
	if !errors.Is(err, waterfall.ErrInvalidResponse) {
		t.Fatalf("duplicate decline should be rejected, got %v", err)
	}
}

func TestResolveUnknownJobAndOffer(t *testing.T) {
	e := newTestEnv(t)
	slot := e.addSlot()
	entry := e.addEntry()
	stranger := e.addEntry()
	job := e.newJob(slot, entry)
	e.advance(job.ID)

	if _, err := e.reconciler.Resolve(context.Background(), uuid.New(), entry.ID, waterfall.ResponseAccept, e.now); !errors.Is(err, waterfall.ErrInvalidResponse) {
		t.Fatalf("unknown job should be rejected, got %v", err)
	}
	if _, err := e.reconciler.Resolve(context.Background(), job.ID, stranger.ID, waterfall.ResponseAccept, e.now); !errors.Is(err, waterfall.ErrInvalidResponse) {
		t.Fatalf("unknown offer should be rejected, got %v", err)
	}
}

func TestResolveAcceptAfterCancellationGetsCourtesy(t *testing.T) {
	e := newTestEnv(t)
	slot := e.addSlot()
	entry := e.addEntry()
	job := e.newJob(slot, entry)

	e.advance(job.ID)
	if _, err := e.sched.Cancel(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	e.now = e.now.Add(time.Minute)
	outcome, err := e.reconciler.Resolve(context.Background(), job.ID, entry.ID, waterfall.ResponseAccept, e.now)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != waterfall.ResolutionSlotUnavailable {
		t.Fatalf("expected SLOT_NO_LONGER_AVAILABLE, got %s", outcome)
	}
	if e.messenger.courtesyCount() != 1 {
		t.Fatalf("courtesy notice not sent")
	}
}

func TestResolveAcceptWhenSlotBookedExternally(t *testing.T) {
	e := newTestEnv(t)
	slot := e.addSlot()
	entry := e.addEntry()
	job := e.newJob(slot, entry)

	e.advance(job.ID)

	// Staff books the slot directly while the offer is outstanding.
	outsider := uuid.New()
	bookedAt := e.now
	e.store.slots[slot.ID].BookedPatientID = &outsider
	e.store.slots[slot.ID].BookedAt = &bookedAt

	e.now = e.now.Add(time.Minute)
	outcome, err := e.reconciler.Resolve(context.Background(), job.ID, entry.ID, waterfall.ResponseAccept, e.now)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != waterfall.ResolutionSlotUnavailable {
		t.Fatalf("expected SLOT_NO_LONGER_AVAILABLE, got %s", outcome)
	}
	if e.offer(job.ID, entry.ID).State != waterfall.OfferStateSuperseded {
		t.Fatalf("losing offer not superseded")
	}
	if e.messenger.courtesyCount() != 1 {
		t.Fatalf("courtesy notice not sent")
	}
}

func TestResolveConcurrentAcceptsExactlyOneWinner(t *testing.T) {
	e := newTestEnv(t)
	slot := e.addSlot()
	a, b := e.addEntry(), e.addEntry()
	job := e.newJob(slot, a, b)

	// Two live offers on one job can exist transiently; drive the race
	// directly against that state.
	e.advance(job.ID)
	expiresAt := e.now.Add(10 * time.Minute)
	if err := e.store.CreateOffer(context.Background(), &waterfall.Offer{
		JobID:     job.ID,
		EntryID:   b.ID,
		PatientID: b.PatientID,
		SlotID:    slot.ID,
		State:     waterfall.OfferStateSent,
		SentAt:    e.now,
		ExpiresAt: expiresAt,
	}); err != nil {
		t.Fatal(err)
	}

	e.now = e.now.Add(time.Minute)

	var wg sync.WaitGroup
	outcomes := make([]waterfall.ResolutionOutcome, 2)
	errs := make([]error, 2)
	for i, entryID := range []uuid.UUID{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, entryID uuid.UUID) {
			defer wg.Done()
			outcomes[i], errs[i] = e.reconciler.Resolve(context.Background(), job.ID, entryID, waterfall.ResponseAccept, e.now)
		}(i, entryID)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("resolve %d failed: %v", i, err)
		}
	}

	accepted, unavailable := 0, 0
	for _, outcome := range outcomes {
		switch outcome {
		case waterfall.ResolutionAccepted:
			accepted++
		case waterfall.ResolutionSlotUnavailable:
			unavailable++
		}
	}
	if accepted != 1 || unavailable != 1 {
		t.Fatalf("expected exactly one winner, got %v", outcomes)
	}

	if e.store.slots[slot.ID].BookedPatientID == nil {
		t.Fatalf("slot not bound")
	}
	got := e.job(job.ID)
	if got.Outcome != waterfall.OutcomeMatched {
		t.Fatalf("job outcome %s", got.Outcome)
	}
}

func TestExpiredCandidateStaysActiveAfterLaterMatch(t *testing.T) {
	e := newTestEnv(t)
	slot := e.addSlot()
	first, second := e.addEntry(), e.addEntry()
	job := e.newJob(slot, first, second)

	e.advance(job.ID)

	// First candidate never replies; the next tick past the window expires
	// the offer and dispatches the second candidate.
	e.now = e.now.Add(11 * time.Minute)
	e.advance(job.ID)
	if e.offer(job.ID, first.ID).State != waterfall.OfferStateExpired {
		t.Fatalf("first offer should have expired")
	}

	e.now = e.now.Add(time.Minute)
	outcome, err := e.reconciler.Resolve(context.Background(), job.ID, second.ID, waterfall.ResponseAccept, e.now)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != waterfall.ResolutionAccepted {
		t.Fatalf("expected ACCEPTED, got %s", outcome)
	}

	// A timeout is not a refusal: the first candidate keeps their place in
	// line for future slots while the match goes to the second.
	if e.store.entries[first.ID].Status != waitlist.EntryStatusActive {
		t.Fatalf("expired candidate's entry left %s, want active", e.store.entries[first.ID].Status)
	}
	if e.store.entries[second.ID].Status != waitlist.EntryStatusMatched {
		t.Fatalf("accepting candidate's entry not matched")
	}
}
