// Package sched provides deferred-job scheduling for Casevine: one-shot,
// time-triggered units of work (reminder pushes, reminder emails, delayed
// payment releases) identified by deterministic keys so that repeat
// schedule/update/delete operations are idempotent.
package sched

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the closed set of deferred job types.
type Kind string

const (
	KindWebPush        Kind = "webpush"
	KindEmail          Kind = "email"
	KindPaymentRelease Kind = "payment_release"
)

// Payload field keys shared between scheduling and handler execution.
const (
	fieldTaskID            = "taskId"
	fieldRecipientID       = "recipientId"
	fieldContent           = "content"
	fieldDateTime          = "dateTime"
	fieldEmailTemplate     = "emailTemplate"
	fieldReceiverEmail     = "receiverEmailAddress"
	fieldSubject           = "subject"
	fieldTemplateVariables = "templateVariables"
	fieldPaymentID         = "paymentId"
)

// IdentityFor maps (kind, task id, secondary key) to the stable string key
// naming a job. The same logical job always yields the same identity, so an
// update or cancel issued later (possibly after a redeploy) still resolves
// to the same job. Payment-release jobs carry no task segment; the segment
// is omitted entirely rather than filled with a sentinel, so identities of
// different kinds cannot collide.
func IdentityFor(kind Kind, taskID, secondaryKey string) string {
	if taskID == "" {
		return string(kind) + ":" + secondaryKey
	}
	return string(kind) + ":" + taskID + ":" + secondaryKey
}

// Job is a scheduled row in the store: the identity plus its structured
// components, the handler payload, and the single absolute fire time.
type Job struct {
	Identity     string
	Kind         Kind
	TaskID       string // empty for payment-release jobs
	SecondaryKey string
	Payload      map[string]string
	FireAt       time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WebPushJob describes a deferred web-push reminder for a single recipient.
type WebPushJob struct {
	TaskID      uuid.UUID
	RecipientID uuid.UUID
	Content     string
	FireAt      time.Time
}

// EmailJob describes a deferred templated email.
type EmailJob struct {
	TaskID            uuid.UUID
	EmailTemplate     string
	ReceiverEmail     string
	Subject           string
	TemplateVariables map[string]any
	FireAt            time.Time
}
