package waterfall

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mindline/internal/slots"
	"mindline/internal/waitlist"
)

// EntrySource supplies the eligible entries for a slot. Implemented by the
// waitlist service; kept narrow to avoid a package cycle.
type EntrySource interface {
	EligibleEntries(ctx context.Context, slot slots.Slot) ([]waitlist.WaitlistEntry, error)
}

// Service is the waterfall engine's public surface
type Service interface {
	// StartForSlot ranks the eligible entries, snapshots them into a new job
	// and dispatches the first offer. Satisfies slots.WaterfallStarter.
	StartForSlot(ctx context.Context, slot slots.Slot) (uuid.UUID, error)

	GetJob(ctx context.Context, id uuid.UUID) (*WaterfallJob, error)
	ListJobs(ctx context.Context, status JobStatus, limit, offset int) ([]WaterfallJob, int64, error)
	GetJobOffers(ctx context.Context, jobID uuid.UUID) ([]Offer, error)
	CancelJob(ctx context.Context, id uuid.UUID) (*WaterfallJob, error)
	// Tick forces one Advance step, for staff tooling.
	Tick(ctx context.Context, id uuid.UUID) (*WaterfallJob, error)
}

type service struct {
	store     Store
	entries   EntrySource
	scheduler *Scheduler
	reporter  Reporter
	rankCfg   waitlist.RankConfig

	responseWindow time.Duration
	offerInterval  time.Duration

	// Now is injectable for tests
	Now func() time.Time
}

// NewService creates the waterfall service
func NewService(store Store, entries EntrySource, scheduler *Scheduler, reporter Reporter, rankCfg waitlist.RankConfig, responseWindow, offerInterval time.Duration) Service {
	return &service{
		store:          store,
		entries:        entries,
		scheduler:      scheduler,
		reporter:       reporter,
		rankCfg:        rankCfg,
		responseWindow: responseWindow,
		offerInterval:  offerInterval,
		Now:            time.Now,
	}
}

func (s *service) StartForSlot(ctx context.Context, slot slots.Slot) (uuid.UUID, error) {
	entries, err := s.entries.EligibleEntries(ctx, slot)
	if err != nil {
		return uuid.Nil, err
	}

	now := s.Now()
	ranked := waitlist.Rank(slot, entries, now, s.rankCfg)

	job := &WaterfallJob{
		ID:                 uuid.New(),
		SlotID:             slot.ID,
		CandidateIDs:       UUIDList(ranked),
		IntervalSecs:       int(s.offerInterval / time.Second),
		ResponseWindowSecs: int(s.responseWindow / time.Second),
		Status:             JobStatusPending,
	}

	if len(ranked) == 0 {
		// Nobody to offer to; the job exists purely as the staff-visible
		// record that the slot found no takers.
		job.Status = JobStatusCompleted
		job.Outcome = OutcomeNoCandidates
		job.CompletedAt = &now
		if err := s.store.CreateJob(ctx, job); err != nil {
			return uuid.Nil, err
		}
		s.reporter.ReportJobOutcome(ctx, job)
		return job.ID, nil
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return uuid.Nil, err
	}

	// First offer goes out immediately; later steps are tick-driven.
	if _, err := s.scheduler.Advance(ctx, job.ID); err != nil {
		return job.ID, err
	}
	return job.ID, nil
}

func (s *service) GetJob(ctx context.Context, id uuid.UUID) (*WaterfallJob, error) {
	return s.store.GetJob(ctx, id)
}

func (s *service) ListJobs(ctx context.Context, status JobStatus, limit, offset int) ([]WaterfallJob, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListJobs(ctx, status, limit, offset)
}

func (s *service) GetJobOffers(ctx context.Context, jobID uuid.UUID) ([]Offer, error) {
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.ListJobOffers(ctx, jobID)
}

func (s *service) CancelJob(ctx context.Context, id uuid.UUID) (*WaterfallJob, error) {
	return s.scheduler.Cancel(ctx, id)
}

func (s *service) Tick(ctx context.Context, id uuid.UUID) (*WaterfallJob, error) {
	return s.scheduler.Advance(ctx, id)
}
