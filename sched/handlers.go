package sched

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casevine/casevine/errors"
)

// NotificationSender delivers a push notification to a recipient.
type NotificationSender interface {
	SendNotification(recipientID uuid.UUID, content string) error
}

// EmailSender sends a templated email.
type EmailSender interface {
	SendTemplateEmail(receiverAddress, subject, template string, variables map[string]any) error
}

// PaymentReleaser executes a previously scheduled payment release.
type PaymentReleaser interface {
	ExecuteScheduledPaymentRelease(paymentID uuid.UUID) error
}

// ExecutionError is the uniform failure raised when a job's firing fails,
// whether during payload decoding or inside the delegate. The original
// cause is preserved and reachable through errors.Is/As/Unwrap.
type ExecutionError struct {
	Kind Kind
	err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to execute %s job: %v", e.Kind, e.err)
}

func (e *ExecutionError) Unwrap() error { return e.err }

// Handlers executes fired jobs by decoding their payload and delegating to
// the matching collaborator. Dispatch is a closed switch over the job kind;
// an unknown kind is itself an execution failure.
type Handlers struct {
	notifications NotificationSender
	email         EmailSender
	payments      PaymentReleaser
	log           *zap.SugaredLogger
}

// NewHandlers creates the handler set with its delivery collaborators.
func NewHandlers(notifications NotificationSender, email EmailSender, payments PaymentReleaser, log *zap.SugaredLogger) *Handlers {
	return &Handlers{
		notifications: notifications,
		email:         email,
		payments:      payments,
		log:           log,
	}
}

// Execute runs the fired job. Any decode or delegate failure is wrapped
// into an ExecutionError for the engine's uniform failure logging.
func (h *Handlers) Execute(ctx context.Context, job *Job) error {
	var err error
	switch job.Kind {
	case KindWebPush:
		err = h.executeWebPush(job)
	case KindEmail:
		err = h.executeEmail(job)
	case KindPaymentRelease:
		err = h.executePaymentRelease(job)
	default:
		err = errors.Newf("unknown job kind %q", job.Kind)
	}

	if err != nil {
		return &ExecutionError{Kind: job.Kind, err: err}
	}
	return nil
}

// executeWebPush requires a parseable recipient id. Content passes through
// as-is, even empty: the scheduled path does not pre-validate emptiness,
// the dispatcher's own content check applies on direct sends. The task id
// is informational only.
func (h *Handlers) executeWebPush(job *Job) error {
	raw, ok := job.Payload[fieldRecipientID]
	if !ok {
		return errors.New("payload missing recipientId")
	}
	recipientID, err := uuid.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid recipientId %q", raw)
	}

	if err := h.notifications.SendNotification(recipientID, job.Payload[fieldContent]); err != nil {
		return err
	}

	h.log.Infow("WebPush job completed",
		"task_id", job.Payload[fieldTaskID],
		"recipient_id", recipientID,
	)
	return nil
}

// executeEmail decodes the JSON-encoded variables map and delegates.
// Missing template, receiver or subject pass through as empty strings; the
// mail collaborator owns their validation. Absent or malformed variables
// JSON is a hard failure.
func (h *Handlers) executeEmail(job *Job) error {
	raw, ok := job.Payload[fieldTemplateVariables]
	if !ok {
		return errors.New("payload missing templateVariables")
	}
	var variables map[string]any
	if err := json.Unmarshal([]byte(raw), &variables); err != nil {
		return errors.Wrap(err, "invalid templateVariables JSON")
	}

	err := h.email.SendTemplateEmail(
		job.Payload[fieldReceiverEmail],
		job.Payload[fieldSubject],
		job.Payload[fieldEmailTemplate],
		variables,
	)
	if err != nil {
		return err
	}

	h.log.Infow("Email job completed", "task_id", job.Payload[fieldTaskID])
	return nil
}

func (h *Handlers) executePaymentRelease(job *Job) error {
	raw, ok := job.Payload[fieldPaymentID]
	if !ok {
		return errors.New("payload missing paymentId")
	}
	paymentID, err := uuid.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid paymentId %q", raw)
	}

	if err := h.payments.ExecuteScheduledPaymentRelease(paymentID); err != nil {
		return err
	}

	h.log.Infow("Payment release job completed", "payment_id", paymentID)
	return nil
}
