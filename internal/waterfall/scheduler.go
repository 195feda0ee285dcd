package waterfall

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"mindline/internal/slots"
	"mindline/internal/waitlist"
)

// ErrPermanentDelivery marks a send failure that will not succeed on retry,
// such as an invalid recipient number. Messenger implementations wrap it.
var ErrPermanentDelivery = errors.New("permanent delivery failure")

// OfferDispatch carries everything a Messenger needs to compose one offer
type OfferDispatch struct {
	Job       *WaterfallJob
	Entry     *waitlist.WaitlistEntry
	Slot      *slots.Slot
	ExpiresAt time.Time
}

// CourtesyNotice tells a losing responder the slot is gone
type CourtesyNotice struct {
	Offer *Offer
	Slot  *slots.Slot
}

// Messenger delivers outbound patient messages. SendOffer is synchronous:
// the scheduler only records an offer as SENT once the provider confirmed
// transmission.
type Messenger interface {
	SendOffer(ctx context.Context, dispatch OfferDispatch) (providerMessageID string, err error)
	SendSlotUnavailable(ctx context.Context, notice CourtesyNotice) error
}

// Reporter receives terminal job outcomes for staff visibility
type Reporter interface {
	ReportJobOutcome(ctx context.Context, job *WaterfallJob)
}

// Scheduler advances waterfall jobs. Advance is a pure step function over
// persisted state: calling it twice in a row is a no-op the second time, and
// a fresh process picks up exactly where the previous one stopped.
type Scheduler struct {
	store      Store
	messenger  Messenger
	reporter   Reporter
	retryLimit int

	// Now is injectable for tests
	Now func() time.Time
}

// NewScheduler creates a waterfall scheduler
func NewScheduler(store Store, messenger Messenger, reporter Reporter, retryLimit int) *Scheduler {
	return &Scheduler{
		store:      store,
		messenger:  messenger,
		reporter:   reporter,
		retryLimit: retryLimit,
		Now:        time.Now,
	}
}

// Advance inspects one job and performs at most one dispatch. It expires the
// outstanding offer when its window has elapsed, steps past resolved
// candidates, honors the inter-offer interval after a timeout, and completes
// the job when the candidate list runs out.
func (s *Scheduler) Advance(ctx context.Context, jobID uuid.UUID) (*WaterfallJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}

	now := s.Now()
	// Set when the previous offer ended by timeout rather than by an explicit
	// decline; only then does the inter-offer interval gate the next send.
	timedOut := false
	dirty := false

	for {
		entryID, ok := job.CurrentCandidate()
		if !ok {
			return s.completeJob(ctx, job, OutcomeExhausted, now)
		}

		offer, err := s.store.GetOffer(ctx, job.ID, entryID)
		if err != nil {
			return nil, err
		}

		if offer != nil {
			switch offer.State {
			case OfferStateSent:
				if now.Before(offer.ExpiresAt) {
					// Still awaiting a reply.
					if dirty {
						job, _, err = s.persistJob(ctx, job)
						if err != nil {
							return nil, err
						}
					}
					return job, nil
				}
				// Window elapsed with no reply.
				offer.State = OfferStateExpired
				if err := s.store.UpdateOffer(ctx, offer); err != nil {
					return nil, err
				}
				timedOut = true
				job.CurrentIndex++
				dirty = true
				continue

			case OfferStateAccepted:
				// CommitAcceptance closes the job in the same transaction, so
				// reaching here means a reload raced the commit. Leave it to
				// the next tick.
				return job, nil

			case OfferStateExpired:
				timedOut = true
				job.CurrentIndex++
				dirty = true
				continue

			case OfferStateDeclined, OfferStateSuperseded:
				job.CurrentIndex++
				dirty = true
				continue
			}
		}

		// No offer yet for the current candidate: this is the dispatch step.
		if job.ErrorLog.AttemptsFor(job.CurrentIndex) >= s.retryLimit {
			// Undeliverable; treated like an immediate decline.
			job.CurrentIndex++
			dirty = true
			continue
		}

		if !timedOut {
			// The expiry may have been processed on an earlier tick; the
			// previous candidate's persisted offer still carries it.
			prev, err := s.previousOfferExpired(ctx, job)
			if err != nil {
				return nil, err
			}
			timedOut = prev
		}
		if timedOut && job.LastOfferSentAt != nil {
			due := job.LastOfferSentAt.Add(job.Interval())
			if now.Before(due) {
				if dirty {
					job, _, err = s.persistJob(ctx, job)
					if err != nil {
						return nil, err
					}
				}
				return job, nil
			}
		}

		return s.dispatch(ctx, job, entryID, now)
	}
}

// persistJob writes the job back through the store's guarded update. A
// conflict means another writer (an acceptance commit, a cancel, or a
// faster tick) already owns newer state; the stale copy is discarded and
// the fresh row returned with ok=false so the caller stops this pass.
func (s *Scheduler) persistJob(ctx context.Context, job *WaterfallJob) (*WaterfallJob, bool, error) {
	err := s.store.UpdateJob(ctx, job)
	if err == nil {
		return job, true, nil
	}
	if errors.Is(err, ErrJobConflict) {
		fresh, getErr := s.store.GetJob(ctx, job.ID)
		if getErr != nil {
			return nil, false, getErr
		}
		return fresh, false, nil
	}
	return nil, false, err
}

func (s *Scheduler) previousOfferExpired(ctx context.Context, job *WaterfallJob) (bool, error) {
	if job.CurrentIndex == 0 || job.CurrentIndex > len(job.CandidateIDs) {
		return false, nil
	}
	prev, err := s.store.GetOffer(ctx, job.ID, job.CandidateIDs[job.CurrentIndex-1])
	if err != nil {
		return false, err
	}
	return prev != nil && prev.State == OfferStateExpired, nil
}

func (s *Scheduler) dispatch(ctx context.Context, job *WaterfallJob, entryID uuid.UUID, now time.Time) (*WaterfallJob, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !entry.IsActive() || entry.IsExpiredAt(now) {
		// The entry left the waitlist after the snapshot was taken.
		job.ErrorLog = append(job.ErrorLog, AttemptNote{
			Index:     job.CurrentIndex,
			EntryID:   entryID,
			At:        now,
			Note:      "entry no longer active, skipped",
			Permanent: true,
		})
		job.CurrentIndex++
		updated, ok, err := s.persistJob(ctx, job)
		if err != nil {
			return nil, err
		}
		if !ok {
			return updated, nil
		}
		return s.Advance(ctx, job.ID)
	}

	slot, err := s.store.GetSlot(ctx, job.SlotID)
	if err != nil {
		return nil, err
	}

	if job.Status == JobStatusPending {
		job.Status = JobStatusInProgress
	}

	expiresAt := now.Add(job.ResponseWindow())
	msgID, sendErr := s.messenger.SendOffer(ctx, OfferDispatch{
		Job:       job,
		Entry:     entry,
		Slot:      slot,
		ExpiresAt: expiresAt,
	})
	if sendErr != nil {
		permanent := errors.Is(sendErr, ErrPermanentDelivery)
		job.ErrorLog = append(job.ErrorLog, AttemptNote{
			Index:     job.CurrentIndex,
			EntryID:   entryID,
			At:        now,
			Note:      sendErr.Error(),
			Permanent: permanent,
		})
		if permanent || job.ErrorLog.AttemptsFor(job.CurrentIndex) >= s.retryLimit {
			log.Printf("waterfall job %s: giving up on candidate %s: %v", job.ID, entryID, sendErr)
			job.CurrentIndex++
			updated, ok, err := s.persistJob(ctx, job)
			if err != nil {
				return nil, err
			}
			if !ok {
				return updated, nil
			}
			return s.Advance(ctx, job.ID)
		}
		// Transient failure; the same candidate is retried on a later tick.
		log.Printf("waterfall job %s: transient send failure for candidate %s: %v", job.ID, entryID, sendErr)
		updated, _, err := s.persistJob(ctx, job)
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	// The message is out. From here every persistence failure is fatal to the
	// tick: continuing on unverified state could double-send.
	offer := &Offer{
		JobID:             job.ID,
		EntryID:           entryID,
		PatientID:         entry.PatientID,
		SlotID:            job.SlotID,
		State:             OfferStateSent,
		SentAt:            now,
		ExpiresAt:         expiresAt,
		ProviderMessageID: &msgID,
	}
	if err := s.store.CreateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("offer sent but not persisted, halting job %s: %w", job.ID, err)
	}

	job.LastOfferSentAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		if errors.Is(err, ErrJobConflict) {
			// The job closed while the send was in flight. The offer row
			// stands; a reply on it resolves through the reconciler's
			// terminal-job path.
			return s.store.GetJob(ctx, job.ID)
		}
		return nil, fmt.Errorf("offer sent but job not persisted, halting job %s: %w", job.ID, err)
	}
	return job, nil
}

func (s *Scheduler) completeJob(ctx context.Context, job *WaterfallJob, outcome JobOutcome, now time.Time) (*WaterfallJob, error) {
	job.Status = JobStatusCompleted
	job.Outcome = outcome
	job.CompletedAt = &now
	updated, ok, err := s.persistJob(ctx, job)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Closed by another writer; that writer reported the outcome.
		return updated, nil
	}
	s.reporter.ReportJobOutcome(ctx, job)
	return job, nil
}

// Cancel closes a job without a match. Outstanding offers are superseded
// first so a reply that arrives mid-cancel cannot land on a live offer.
func (s *Scheduler) Cancel(ctx context.Context, jobID uuid.UUID) (*WaterfallJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}

	offers, err := s.store.ListJobOffers(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	for i := range offers {
		if offers[i].State == OfferStateSent {
			offers[i].State = OfferStateSuperseded
			if err := s.store.UpdateOffer(ctx, &offers[i]); err != nil {
				return nil, err
			}
		}
	}

	now := s.Now()
	job.Status = JobStatusCancelled
	job.Outcome = OutcomeCancelled
	job.CompletedAt = &now
	updated, ok, err := s.persistJob(ctx, job)
	if err != nil {
		return nil, err
	}
	if !ok {
		return updated, nil
	}
	s.reporter.ReportJobOutcome(ctx, job)
	return job, nil
}
