package sched

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scheduler is the public scheduling API. Every operation is best-effort:
// store failures are caught, logged and absorbed, because notification
// scheduling must never fail the business transaction that triggered it.
// Correctness under concurrent callers comes from the identity-keyed,
// idempotent store operations, not from locking across calls.
type Scheduler struct {
	store  *Store
	engine *Engine
	log    *zap.SugaredLogger
}

// NewScheduler creates the scheduling API over a store. The engine is only
// consulted for status snapshots and may be nil in contexts that never
// fire (pure scheduling tests, admin tooling).
func NewScheduler(store *Store, engine *Engine, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{store: store, engine: engine, log: log}
}

// ScheduleWebPush registers a one-shot web-push reminder. Missing required
// fields (task id, recipient, fire time) make the call a logged no-op.
func (s *Scheduler) ScheduleWebPush(job WebPushJob) {
	if job.TaskID == uuid.Nil || job.RecipientID == uuid.Nil || job.FireAt.IsZero() {
		s.log.Warnw("Cannot schedule WebPush notification: missing required fields",
			"task_id", job.TaskID,
			"recipient_id", job.RecipientID,
		)
		return
	}

	row := &Job{
		Identity:     IdentityFor(KindWebPush, job.TaskID.String(), job.RecipientID.String()),
		Kind:         KindWebPush,
		TaskID:       job.TaskID.String(),
		SecondaryKey: job.RecipientID.String(),
		Payload: map[string]string{
			fieldTaskID:      job.TaskID.String(),
			fieldRecipientID: job.RecipientID.String(),
			fieldContent:     job.Content,
			fieldDateTime:    job.FireAt.Format(time.RFC3339),
		},
		FireAt: job.FireAt,
	}

	if err := s.store.Upsert(row); err != nil {
		s.log.Errorw("Failed to schedule WebPush notification",
			"task_id", job.TaskID,
			"recipient_id", job.RecipientID,
			"error", err,
		)
		return
	}
	s.log.Debugw("Scheduled WebPush notification", "identity", row.Identity, "fire_at", job.FireAt)
}

// ScheduleEmail registers a one-shot templated email. Missing required
// fields (task id, receiver, fire time) or unserializable template
// variables make the call a logged no-op.
func (s *Scheduler) ScheduleEmail(job EmailJob) {
	if job.TaskID == uuid.Nil || job.ReceiverEmail == "" || job.FireAt.IsZero() {
		s.log.Warnw("Cannot schedule Email notification: missing required fields",
			"task_id", job.TaskID,
			"receiver", job.ReceiverEmail,
		)
		return
	}

	variables, err := json.Marshal(job.TemplateVariables)
	if err != nil {
		s.log.Errorw("Failed to serialize template variables",
			"task_id", job.TaskID,
			"error", err,
		)
		return
	}

	row := &Job{
		Identity:     IdentityFor(KindEmail, job.TaskID.String(), job.ReceiverEmail),
		Kind:         KindEmail,
		TaskID:       job.TaskID.String(),
		SecondaryKey: job.ReceiverEmail,
		Payload: map[string]string{
			fieldTaskID:            job.TaskID.String(),
			fieldEmailTemplate:     job.EmailTemplate,
			fieldReceiverEmail:     job.ReceiverEmail,
			fieldSubject:           job.Subject,
			fieldTemplateVariables: string(variables),
			fieldDateTime:          job.FireAt.Format(time.RFC3339),
		},
		FireAt: job.FireAt,
	}

	if err := s.store.Upsert(row); err != nil {
		s.log.Errorw("Failed to schedule Email notification",
			"task_id", job.TaskID,
			"receiver", job.ReceiverEmail,
			"error", err,
		)
		return
	}
	s.log.Debugw("Scheduled Email notification", "identity", row.Identity, "fire_at", job.FireAt)
}

// SchedulePaymentRelease registers a delayed payment release. The payment
// id is the sole identity key; there is no task segment.
func (s *Scheduler) SchedulePaymentRelease(paymentID uuid.UUID, releaseAt time.Time) {
	if paymentID == uuid.Nil || releaseAt.IsZero() {
		s.log.Warnw("Cannot schedule payment release: missing required fields",
			"payment_id", paymentID,
		)
		return
	}

	row := &Job{
		Identity:     IdentityFor(KindPaymentRelease, "", paymentID.String()),
		Kind:         KindPaymentRelease,
		SecondaryKey: paymentID.String(),
		Payload: map[string]string{
			fieldPaymentID: paymentID.String(),
		},
		FireAt: releaseAt,
	}

	if err := s.store.Upsert(row); err != nil {
		s.log.Errorw("Failed to schedule payment release",
			"payment_id", paymentID,
			"error", err,
		)
		return
	}
	s.log.Debugw("Scheduled payment release", "identity", row.Identity, "fire_at", releaseAt)
}

// UpdateWebPush reschedules by delete-then-schedule. If no job existed the
// update acts as an upsert. A handler firing concurrently with an in-flight
// update may observe either the old or the new schedule; this race is accepted
// (at-most-one delivery per identity still holds because a firing claims
// the row).
func (s *Scheduler) UpdateWebPush(job WebPushJob) {
	s.DeleteWebPush(job.TaskID, job.RecipientID)
	s.ScheduleWebPush(job)
}

// UpdateEmail reschedules by delete-then-schedule; see UpdateWebPush for
// the accepted race.
func (s *Scheduler) UpdateEmail(job EmailJob) {
	s.DeleteEmail(job.TaskID, job.ReceiverEmail)
	s.ScheduleEmail(job)
}

// DeleteWebPush cancels a scheduled web-push reminder. Absence is not an
// error.
func (s *Scheduler) DeleteWebPush(taskID, recipientID uuid.UUID) {
	s.delete(IdentityFor(KindWebPush, taskID.String(), recipientID.String()))
}

// DeleteEmail cancels a scheduled email reminder.
func (s *Scheduler) DeleteEmail(taskID uuid.UUID, receiverEmail string) {
	s.delete(IdentityFor(KindEmail, taskID.String(), receiverEmail))
}

// DeletePaymentRelease cancels a scheduled payment release.
func (s *Scheduler) DeletePaymentRelease(paymentID uuid.UUID) {
	s.delete(IdentityFor(KindPaymentRelease, "", paymentID.String()))
}

func (s *Scheduler) delete(identity string) {
	removed, err := s.store.Delete(identity)
	if err != nil {
		s.log.Errorw("Failed to delete scheduled job", "identity", identity, "error", err)
		return
	}
	if removed {
		s.log.Debugw("Deleted scheduled job", "identity", identity)
	}
}

// DeleteAllForTask purges every job whose task segment equals taskID. Used
// when a meeting is edited or cancelled to drop its reminder jobs in one
// call.
func (s *Scheduler) DeleteAllForTask(taskID uuid.UUID) {
	removed, err := s.store.DeleteByTask(taskID.String())
	if err != nil {
		s.log.Errorw("Failed to delete jobs for task", "task_id", taskID, "error", err)
		return
	}
	s.log.Infow("Deleted all jobs for task", "task_id", taskID, "removed", removed)
}

// WebPushJobExists probes for a scheduled web-push job. Store errors are
// treated as "not found" so idempotency checks fail closed.
func (s *Scheduler) WebPushJobExists(taskID, recipientID uuid.UUID) bool {
	return s.exists(IdentityFor(KindWebPush, taskID.String(), recipientID.String()))
}

// EmailJobExists probes for a scheduled email job.
func (s *Scheduler) EmailJobExists(taskID uuid.UUID, receiverEmail string) bool {
	return s.exists(IdentityFor(KindEmail, taskID.String(), receiverEmail))
}

// PaymentReleaseJobExists probes for a scheduled payment release.
func (s *Scheduler) PaymentReleaseJobExists(paymentID uuid.UUID) bool {
	return s.exists(IdentityFor(KindPaymentRelease, "", paymentID.String()))
}

func (s *Scheduler) exists(identity string) bool {
	found, err := s.store.Exists(identity)
	if err != nil {
		s.log.Errorw("Failed to check job existence", "identity", identity, "error", err)
		return false
	}
	return found
}

// Status returns the engine's diagnostic snapshot. Without an attached
// engine only the scheduled count is populated.
func (s *Scheduler) Status() Status {
	if s.engine != nil {
		return s.engine.Status()
	}

	count, err := s.store.Count()
	if err != nil {
		s.log.Errorw("Failed to count scheduled jobs", "error", err)
		count = 0
	}
	return Status{Engine: EngineName, ScheduledJobs: count}
}
