package waterfall

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"mindline/internal/slots"
)

// ErrInvalidResponse covers every reply that cannot be applied: unknown job
// or offer, a duplicate reply, or a reply outside the response window.
var ErrInvalidResponse = errors.New("invalid response")

// ResponseKind is the normalized intent parsed from an inbound reply
type ResponseKind string

const (
	ResponseAccept  ResponseKind = "ACCEPT"
	ResponseDecline ResponseKind = "DECLINE"
	ResponseOptOut  ResponseKind = "OPT_OUT"
)

// ResolutionOutcome tells the webhook layer how a reply was applied
type ResolutionOutcome string

const (
	ResolutionAccepted        ResolutionOutcome = "ACCEPTED"
	ResolutionDeclined        ResolutionOutcome = "DECLINED"
	ResolutionOptedOut        ResolutionOutcome = "OPTED_OUT"
	ResolutionSlotUnavailable ResolutionOutcome = "SLOT_NO_LONGER_AVAILABLE"
)

// OptOutRegistry flags a patient as unreachable over SMS
type OptOutRegistry interface {
	SetSMSOptOut(ctx context.Context, id uuid.UUID) error
}

// MatchRecorder is notified when an entry is matched to a slot
type MatchRecorder interface {
	RecordMatch(ctx context.Context, entryID uuid.UUID)
}

// Reconciler applies inbound patient replies to offer state. It is the
// single writer for response-driven transitions: every resolution runs under
// the per-job lock, so two concurrent accepts for the same job are ordered
// and exactly one can win.
type Reconciler struct {
	store     Store
	locker    Locker
	scheduler *Scheduler
	messenger Messenger
	reporter  Reporter
	optOuts   OptOutRegistry
	matches   MatchRecorder

	// Now is injectable for tests
	Now func() time.Time
}

// NewReconciler creates a response reconciler
func NewReconciler(store Store, locker Locker, scheduler *Scheduler, messenger Messenger, reporter Reporter, optOuts OptOutRegistry, matches MatchRecorder) *Reconciler {
	return &Reconciler{
		store:     store,
		locker:    locker,
		scheduler: scheduler,
		messenger: messenger,
		reporter:  reporter,
		optOuts:   optOuts,
		matches:   matches,
		Now:       time.Now,
	}
}

// Resolve applies one reply to the offer identified by (jobID, entryID).
// receivedAt is the provider's receive timestamp, checked against the offer
// window. Replies that lose an accept race get ResolutionSlotUnavailable and
// a courtesy message instead of an error.
func (r *Reconciler) Resolve(ctx context.Context, jobID, entryID uuid.UUID, kind ResponseKind, receivedAt time.Time) (ResolutionOutcome, error) {
	var outcome ResolutionOutcome
	var advance bool
	var completedJob *WaterfallJob

	err := r.locker.WithJobLock(ctx, jobID, func(ctx context.Context) error {
		job, err := r.store.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				return fmt.Errorf("%w: unknown job %s", ErrInvalidResponse, jobID)
			}
			return err
		}

		offer, err := r.store.GetOffer(ctx, jobID, entryID)
		if err != nil {
			return err
		}
		if offer == nil {
			return fmt.Errorf("%w: no offer for entry %s on job %s", ErrInvalidResponse, entryID, jobID)
		}

		if offer.State != OfferStateSent {
			// Late reply on an already-resolved offer. An accept that lost to
			// a concurrent winner or a cancellation gets the courtesy path;
			// anything else is a duplicate.
			if kind == ResponseAccept && (offer.State == OfferStateSuperseded || job.IsTerminal()) {
				outcome = ResolutionSlotUnavailable
				r.notifySlotUnavailable(ctx, offer)
				return nil
			}
			return fmt.Errorf("%w: offer already %s", ErrInvalidResponse, offer.State)
		}

		if !receivedAt.Before(offer.ExpiresAt) {
			offer.State = OfferStateExpired
			if err := r.store.UpdateOffer(ctx, offer); err != nil {
				return err
			}
			advance = true
			return fmt.Errorf("%w: response window elapsed", ErrInvalidResponse)
		}

		switch kind {
		case ResponseAccept:
			if job.IsTerminal() {
				// The job closed while this offer was still outstanding.
				offer.State = OfferStateSuperseded
				if err := r.store.UpdateOffer(ctx, offer); err != nil {
					return err
				}
				outcome = ResolutionSlotUnavailable
				r.notifySlotUnavailable(ctx, offer)
				return nil
			}
			if err := r.store.CommitAcceptance(ctx, job, offer, r.Now()); err != nil {
				if errors.Is(err, slots.ErrSlotAlreadyBooked) {
					// Booked outside this job, e.g. by staff directly.
					offer.State = OfferStateSuperseded
					if updateErr := r.store.UpdateOffer(ctx, offer); updateErr != nil {
						return updateErr
					}
					outcome = ResolutionSlotUnavailable
					r.notifySlotUnavailable(ctx, offer)
					return nil
				}
				return err
			}
			completedJob = job
			outcome = ResolutionAccepted
			return nil

		case ResponseDecline:
			now := r.Now()
			offer.State = OfferStateDeclined
			offer.RespondedAt = &now
			if err := r.store.UpdateOffer(ctx, offer); err != nil {
				return err
			}
			outcome = ResolutionDeclined
			advance = true
			return nil

		case ResponseOptOut:
			// Recorded as a decline for this offer, plus a flag that removes
			// the patient from every future candidate pool.
			now := r.Now()
			offer.State = OfferStateDeclined
			offer.RespondedAt = &now
			if err := r.store.UpdateOffer(ctx, offer); err != nil {
				return err
			}
			if err := r.optOuts.SetSMSOptOut(ctx, offer.PatientID); err != nil {
				log.Printf("waterfall job %s: failed to record opt-out for patient %s: %v", jobID, offer.PatientID, err)
			}
			outcome = ResolutionOptedOut
			advance = true
			return nil

		default:
			return fmt.Errorf("%w: unrecognized response kind %q", ErrInvalidResponse, kind)
		}
	})

	// A decline, opt-out, or late reply moves the waterfall forward right
	// away rather than waiting for the next tick.
	if advance {
		if _, advErr := r.scheduler.Advance(ctx, jobID); advErr != nil {
			log.Printf("waterfall job %s: advance after response failed: %v", jobID, advErr)
		}
	}

	if err != nil {
		return "", err
	}

	if outcome == ResolutionAccepted {
		r.matches.RecordMatch(ctx, entryID)
		r.reporter.ReportJobOutcome(ctx, completedJob)
	}
	return outcome, nil
}

func (r *Reconciler) notifySlotUnavailable(ctx context.Context, offer *Offer) {
	slot, err := r.store.GetSlot(ctx, offer.SlotID)
	if err != nil {
		log.Printf("courtesy notice for offer %s skipped: %v", offer.ID, err)
		return
	}
	if err := r.messenger.SendSlotUnavailable(ctx, CourtesyNotice{Offer: offer, Slot: slot}); err != nil {
		log.Printf("courtesy notice for offer %s failed: %v", offer.ID, err)
	}
}
