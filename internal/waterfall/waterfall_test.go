package waterfall_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"mindline/internal/slots"
	"mindline/internal/waitlist"
	"mindline/internal/waterfall"
)

// fakeStore is an in-memory Store with the same guarded-update semantics as
// the real one, including the compound acceptance commit.
type fakeStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*waterfall.WaterfallJob
	offers  map[uuid.UUID]map[uuid.UUID]*waterfall.Offer
	slots   map[uuid.UUID]*slots.Slot
	entries map[uuid.UUID]*waitlist.WaitlistEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:    make(map[uuid.UUID]*waterfall.WaterfallJob),
		offers:  make(map[uuid.UUID]map[uuid.UUID]*waterfall.Offer),
		slots:   make(map[uuid.UUID]*slots.Slot),
		entries: make(map[uuid.UUID]*waitlist.WaitlistEntry),
	}
}

func cloneJob(j *waterfall.WaterfallJob) *waterfall.WaterfallJob {
	c := *j
	c.CandidateIDs = append(waterfall.UUIDList(nil), j.CandidateIDs...)
	c.ErrorLog = append(waterfall.AttemptLog(nil), j.ErrorLog...)
	return &c
}

func cloneOffer(o *waterfall.Offer) *waterfall.Offer {
	c := *o
	return &c
}

func (s *fakeStore) CreateJob(ctx context.Context, job *waterfall.WaterfallJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*waterfall.WaterfallJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, waterfall.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *fakeStore) UpdateJob(ctx context.Context, job *waterfall.WaterfallJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok || stored.IsTerminal() || stored.CurrentIndex > job.CurrentIndex {
		return waterfall.ErrJobConflict
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *fakeStore) ListJobs(ctx context.Context, status waterfall.JobStatus, limit, offset int) ([]waterfall.WaterfallJob, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []waterfall.WaterfallJob
	for _, job := range s.jobs {
		if status == "" || job.Status == status {
			out = append(out, *cloneJob(job))
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakeStore) ListRunnableJobs(ctx context.Context, limit int) ([]waterfall.WaterfallJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []waterfall.WaterfallJob
	for _, job := range s.jobs {
		if job.Status == waterfall.JobStatusPending || job.Status == waterfall.JobStatusInProgress {
			out = append(out, *cloneJob(job))
		}
	}
	return out, nil
}

func (s *fakeStore) CreateOffer(ctx context.Context, offer *waterfall.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	if s.offers[offer.JobID] == nil {
		s.offers[offer.JobID] = make(map[uuid.UUID]*waterfall.Offer)
	}
	if _, exists := s.offers[offer.JobID][offer.EntryID]; exists {
		return fmt.Errorf("duplicate offer for job %s entry %s", offer.JobID, offer.EntryID)
	}
	s.offers[offer.JobID][offer.EntryID] = cloneOffer(offer)
	return nil
}

func (s *fakeStore) GetOffer(ctx context.Context, jobID, entryID uuid.UUID) (*waterfall.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer, ok := s.offers[jobID][entryID]
	if !ok {
		return nil, nil
	}
	return cloneOffer(offer), nil
}

func (s *fakeStore) UpdateOffer(ctx context.Context, offer *waterfall.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[offer.JobID][offer.EntryID] = cloneOffer(offer)
	return nil
}

func (s *fakeStore) ListJobOffers(ctx context.Context, jobID uuid.UUID) ([]waterfall.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []waterfall.Offer
	for _, offer := range s.offers[jobID] {
		out = append(out, *cloneOffer(offer))
	}
	return out, nil
}

func (s *fakeStore) GetSlot(ctx context.Context, id uuid.UUID) (*slots.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, fmt.Errorf("slot %s not found", id)
	}
	c := *slot
	return &c, nil
}

func (s *fakeStore) GetEntry(ctx context.Context, id uuid.UUID) (*waitlist.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("waitlist entry %s not found", id)
	}
	c := *entry
	return &c, nil
}

func (s *fakeStore) CommitAcceptance(ctx context.Context, job *waterfall.WaterfallJob, offer *waterfall.Offer, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[job.SlotID]
	if !ok {
		return fmt.Errorf("slot %s not found", job.SlotID)
	}
	if slot.BookedPatientID != nil {
		return slots.ErrSlotAlreadyBooked
	}

	stored, ok := s.offers[job.ID][offer.EntryID]
	if !ok || stored.State != waterfall.OfferStateSent {
		return waterfall.ErrOfferNotPending
	}

	storedJob, ok := s.jobs[job.ID]
	if !ok || storedJob.IsTerminal() {
		return waterfall.ErrJobAlreadyClosed
	}

	patientID := offer.PatientID
	slot.BookedPatientID = &patientID
	slot.BookedAt = &now

	stored.State = waterfall.OfferStateAccepted
	stored.RespondedAt = &now
	for entryID, sibling := range s.offers[job.ID] {
		if entryID != offer.EntryID && sibling.State == waterfall.OfferStateSent {
			sibling.State = waterfall.OfferStateSuperseded
		}
	}

	if entry, ok := s.entries[offer.EntryID]; ok {
		entry.Status = waitlist.EntryStatusMatched
	}

	storedJob.Status = waterfall.JobStatusCompleted
	storedJob.Outcome = waterfall.OutcomeMatched
	storedJob.CompletedAt = &now

	offer.State = waterfall.OfferStateAccepted
	offer.RespondedAt = &now
	job.Status = waterfall.JobStatusCompleted
	job.Outcome = waterfall.OutcomeMatched
	job.CompletedAt = &now
	return nil
}

// fakeMessenger records dispatches and serves scripted failures per entry
type fakeMessenger struct {
	mu         sync.Mutex
	sent       []waterfall.OfferDispatch
	courtesies []waterfall.CourtesyNotice
	failures   map[uuid.UUID][]error
	seq        int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{failures: make(map[uuid.UUID][]error)}
}

func (m *fakeMessenger) failNext(entryID uuid.UUID, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[entryID] = append(m.failures[entryID], errs...)
}

func (m *fakeMessenger) SendOffer(ctx context.Context, dispatch waterfall.OfferDispatch) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if queue := m.failures[dispatch.Entry.ID]; len(queue) > 0 {
		err := queue[0]
		m.failures[dispatch.Entry.ID] = queue[1:]
		return "", err
	}
	m.seq++
	m.sent = append(m.sent, dispatch)
	return fmt.Sprintf("msg-%d", m.seq), nil
}

func (m *fakeMessenger) SendSlotUnavailable(ctx context.Context, notice waterfall.CourtesyNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courtesies = append(m.courtesies, notice)
	return nil
}

func (m *fakeMessenger) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMessenger) lastSent() waterfall.OfferDispatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func (m *fakeMessenger) courtesyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.courtesies)
}

// fakeReporter records terminal outcomes
type fakeReporter struct {
	mu       sync.Mutex
	outcomes []waterfall.JobOutcome
}

func (r *fakeReporter) ReportJobOutcome(ctx context.Context, job *waterfall.WaterfallJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, job.Outcome)
}

func (r *fakeReporter) reported() []waterfall.JobOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]waterfall.JobOutcome(nil), r.outcomes...)
}

// fakeLocker serializes per job with in-process mutexes
type fakeLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *fakeLocker) WithJobLock(ctx context.Context, jobID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	lock, ok := l.locks[jobID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[jobID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

type fakeOptOuts struct {
	mu       sync.Mutex
	optedOut map[uuid.UUID]bool
}

func newFakeOptOuts() *fakeOptOuts {
	return &fakeOptOuts{optedOut: make(map[uuid.UUID]bool)}
}

func (f *fakeOptOuts) SetSMSOptOut(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optedOut[id] = true
	return nil
}

type fakeMatches struct {
	mu      sync.Mutex
	matched []uuid.UUID
}

func (f *fakeMatches) RecordMatch(ctx context.Context, entryID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matched = append(f.matched, entryID)
}

// testEnv wires a scheduler and reconciler over the fakes with a settable
// clock.
type testEnv struct {
	t          *testing.T
	store      *fakeStore
	messenger  *fakeMessenger
	reporter   *fakeReporter
	locker     *fakeLocker
	optOuts    *fakeOptOuts
	matches    *fakeMatches
	sched      *waterfall.Scheduler
	reconciler *waterfall.Reconciler
	now        time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		t:         t,
		store:     newFakeStore(),
		messenger: newFakeMessenger(),
		reporter:  &fakeReporter{},
		locker:    newFakeLocker(),
		optOuts:   newFakeOptOuts(),
		matches:   &fakeMatches{},
		now:       time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC),
	}
	e.sched = waterfall.NewScheduler(e.store, e.messenger, e.reporter, 3)
	e.sched.Now = func() time.Time { return e.now }
	e.reconciler = waterfall.NewReconciler(e.store, e.locker, e.sched, e.messenger, e.reporter, e.optOuts, e.matches)
	e.reconciler.Now = e.sched.Now
	return e
}

func (e *testEnv) addSlot() slots.Slot {
	slot := slots.Slot{
		ID:              uuid.New(),
		ProviderID:      uuid.New(),
		StartTime:       e.now.AddDate(0, 0, 3),
		Modality:        slots.ModalityTelehealth,
		AppointmentType: "INDIVIDUAL",
	}
	slot.EndTime = slot.StartTime.Add(50 * time.Minute)
	e.store.slots[slot.ID] = &slot
	return slot
}

func (e *testEnv) addEntry() waitlist.WaitlistEntry {
	expires := e.now.AddDate(0, 0, 30)
	entry := waitlist.WaitlistEntry{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Priority:  waitlist.PriorityMedium,
		Modality:  waitlist.EntryModalityAny,
		Status:    waitlist.EntryStatusActive,
		CreatedAt: e.now.AddDate(0, 0, -7),
		ExpiresAt: &expires,
	}
	e.store.entries[entry.ID] = &entry
	return entry
}

// newJob persists a pending job snapshotting the given entries, with a
// 10 minute response window and 5 minute inter-offer interval.
func (e *testEnv) newJob(slot slots.Slot, entries ...waitlist.WaitlistEntry) *waterfall.WaterfallJob {
	e.t.Helper()
	candidates := make(waterfall.UUIDList, len(entries))
	for i, entry := range entries {
		candidates[i] = entry.ID
	}
	job := &waterfall.WaterfallJob{
		ID:                 uuid.New(),
		SlotID:             slot.ID,
		CandidateIDs:       candidates,
		IntervalSecs:       300,
		ResponseWindowSecs: 600,
		Status:             waterfall.JobStatusPending,
	}
	if err := e.store.CreateJob(context.Background(), job); err != nil {
		e.t.Fatalf("create job: %v", err)
	}
	return job
}

func (e *testEnv) advance(jobID uuid.UUID) *waterfall.WaterfallJob {
	e.t.Helper()
	job, err := e.sched.Advance(context.Background(), jobID)
	if err != nil {
		e.t.Fatalf("advance: %v", err)
	}
	return job
}

func (e *testEnv) offer(jobID, entryID uuid.UUID) *waterfall.Offer {
	e.t.Helper()
	offer, err := e.store.GetOffer(context.Background(), jobID, entryID)
	if err != nil {
		e.t.Fatalf("get offer: %v", err)
	}
	if offer == nil {
		e.t.Fatalf("no offer for job %s entry %s", jobID, entryID)
	}
	return offer
}

func (e *testEnv) job(jobID uuid.UUID) *waterfall.WaterfallJob {
	e.t.Helper()
	job, err := e.store.GetJob(context.Background(), jobID)
	if err != nil {
		e.t.Fatalf("get job: %v", err)
	}
	return job
}
