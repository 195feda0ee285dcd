package notifications

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"mindline/internal/patients"
	"mindline/internal/slots"
	"mindline/internal/waterfall"
)

// Service composes and delivers every patient and staff message. It is the
// waterfall engine's Messenger and Reporter: offers go out synchronously over
// the SMS client, courtesy notices and staff reports ride the Kafka pipeline.
type Service interface {
	SendOffer(ctx context.Context, dispatch waterfall.OfferDispatch) (string, error)
	SendSlotUnavailable(ctx context.Context, notice waterfall.CourtesyNotice) error
	ReportJobOutcome(ctx context.Context, job *waterfall.WaterfallJob)

	ListJobDeliveries(ctx context.Context, jobID uuid.UUID) ([]DeliveryRecord, error)
	ListRecentDeliveries(ctx context.Context, limit, offset int) ([]DeliveryRecord, int64, error)
}

type service struct {
	sms         SMSClient
	producer    MessageProducer
	deliveries  DeliveryStore
	directory   patients.Directory
	staffNumber string
}

// NewService creates the notifications service
func NewService(sms SMSClient, producer MessageProducer, deliveries DeliveryStore, directory patients.Directory, staffNumber string) Service {
	return &service{
		sms:         sms,
		producer:    producer,
		deliveries:  deliveries,
		directory:   directory,
		staffNumber: staffNumber,
	}
}

// SendOffer delivers one slot offer and returns the provider message id.
// The call is synchronous on purpose: the scheduler records SENT only after
// the provider confirmed transmission.
func (s *service) SendOffer(ctx context.Context, dispatch waterfall.OfferDispatch) (string, error) {
	patient, err := s.directory.GetPatient(ctx, dispatch.Entry.PatientID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", waterfall.ErrPermanentDelivery, err)
	}

	body := composeOfferBody(patient, dispatch)
	record := &DeliveryRecord{
		Kind:      KindOffer,
		Phone:     patient.Phone,
		Body:      body,
		PatientID: &patient.ID,
		JobID:     &dispatch.Job.ID,
		Status:    DeliveryStatusSending,
		Attempts:  1,
	}

	providerID, sendErr := s.sms.Send(ctx, patient.Phone, body)
	if sendErr != nil {
		record.MarkFailed(sendErr)
	} else {
		record.MarkSent(providerID)
	}
	if err := s.deliveries.Create(ctx, record); err != nil {
		log.Printf("Failed to save offer delivery record: %v", err)
	}
	if sendErr != nil {
		return "", sendErr
	}
	return providerID, nil
}

// SendSlotUnavailable queues the courtesy note for a losing responder.
// Best-effort: it rides the async pipeline and never blocks reconciliation.
func (s *service) SendSlotUnavailable(ctx context.Context, notice waterfall.CourtesyNotice) error {
	patient, err := s.directory.GetPatient(ctx, notice.Offer.PatientID)
	if err != nil {
		return err
	}

	message := &OutboundMessage{
		ID:        uuid.New(),
		Kind:      KindSlotUnavailable,
		Phone:     patient.Phone,
		Body:      composeSlotUnavailableBody(patient, notice),
		PatientID: &patient.ID,
		JobID:     &notice.Offer.JobID,
		OfferID:   &notice.Offer.ID,
		CreatedAt: time.Now(),
	}
	return s.producer.PublishMessage(ctx, message)
}

// ReportJobOutcome pushes the terminal outcome of a job to the practice's
// staff line. Failures are logged, never propagated: reporting must not
// block the engine.
func (s *service) ReportJobOutcome(ctx context.Context, job *waterfall.WaterfallJob) {
	if s.staffNumber == "" {
		log.Printf("Waterfall job %s finished with outcome %s (no staff number configured)", job.ID, job.Outcome)
		return
	}

	message := &OutboundMessage{
		ID:        uuid.New(),
		Kind:      KindStaffReport,
		Phone:     s.staffNumber,
		Body:      composeStaffReportBody(job),
		JobID:     &job.ID,
		CreatedAt: time.Now(),
	}
	if err := s.producer.PublishMessage(ctx, message); err != nil {
		log.Printf("Failed to publish staff report for job %s: %v", job.ID, err)
	}
}

func (s *service) ListJobDeliveries(ctx context.Context, jobID uuid.UUID) ([]DeliveryRecord, error) {
	return s.deliveries.ListForJob(ctx, jobID)
}

func (s *service) ListRecentDeliveries(ctx context.Context, limit, offset int) ([]DeliveryRecord, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.deliveries.ListRecent(ctx, limit, offset)
}

func composeOfferBody(patient *patients.Patient, dispatch waterfall.OfferDispatch) string {
	slot := dispatch.Slot
	modality := "in person"
	if slot.Modality == slots.ModalityTelehealth {
		modality = "via telehealth"
	}
	return fmt.Sprintf(
		"Hi %s, an appointment opening is available on %s at %s (%s). Reply ACCEPT to take it, DECLINE to pass, or STOP to end appointment texts. This offer expires at %s.",
		patient.FirstName,
		slot.StartTime.Format("Monday, Jan 2"),
		slot.StartTime.Format("3:04 PM"),
		modality,
		dispatch.ExpiresAt.Format("3:04 PM"),
	)
}

func composeSlotUnavailableBody(patient *patients.Patient, notice waterfall.CourtesyNotice) string {
	return fmt.Sprintf(
		"Hi %s, the appointment on %s at %s is no longer available. You remain on the waitlist and we will text you when the next opening comes up.",
		patient.FirstName,
		notice.Slot.StartTime.Format("Monday, Jan 2"),
		notice.Slot.StartTime.Format("3:04 PM"),
	)
}

func composeStaffReportBody(job *waterfall.WaterfallJob) string {
	switch job.Outcome {
	case waterfall.OutcomeMatched:
		return fmt.Sprintf("Waitlist offer run %s filled slot %s after %d offer(s).", job.ID, job.SlotID, job.CurrentIndex+1)
	case waterfall.OutcomeExhausted:
		return fmt.Sprintf("Waitlist offer run %s exhausted all %d candidate(s) for slot %s without a match.", job.ID, len(job.CandidateIDs), job.SlotID)
	case waterfall.OutcomeNoCandidates:
		return fmt.Sprintf("Slot %s had no eligible waitlist candidates.", job.SlotID)
	case waterfall.OutcomeCancelled:
		return fmt.Sprintf("Waitlist offer run %s for slot %s was cancelled.", job.ID, job.SlotID)
	default:
		return fmt.Sprintf("Waitlist offer run %s for slot %s finished with outcome %s.", job.ID, job.SlotID, job.Outcome)
	}
}
