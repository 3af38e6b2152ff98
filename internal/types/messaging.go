package types

import (
	"encoding/json"
	"time"
)

// WebhookJob is the queue envelope for one webhook delivery: exactly one job
// is enqueued per (event, subscriber) pair per triggering mutation. The
// payload travels with the job so a retried execution re-derives nothing
// stateful; the format-specific envelope (Slack/Discord wrapping, signing) is
// applied at send time by the worker.
type WebhookJob struct {
	JobID          string          `json:"job_id"`
	WebhookID      string          `json:"webhook_id"`
	OrganizationID string          `json:"organization_id"`
	EventKind      EventKind       `json:"event_kind"`
	Payload        json.RawMessage `json:"payload"`
	OccurredAt     time.Time       `json:"occurred_at"`

	// RetryCount carries retry state across the publish-subscribe cycle.
	// Incremented by the publisher before re-serialization on transient
	// failures.
	RetryCount int `json:"retry_count"`

	TraceID string `json:"trace_id"`
}

// OutboundEmail is the fully rendered send request handed to an email
// provider. Threading is the complete header set; its zero value produces a
// fresh, non-threaded email.
type OutboundEmail struct {
	ToEmail      string
	ToName       string
	Subject      string
	HTML         string
	CC           []string
	ReplyTo      string
	TicketNumber string
	Threading    ThreadHeaders
}

// EmailJobKind selects which email notification the worker renders.
type EmailJobKind string

const (
	EmailJobTicketCreated  EmailJobKind = "ticket_created"
	EmailJobTicketAssigned EmailJobKind = "ticket_assigned"
	EmailJobMessagePosted  EmailJobKind = "message_posted"
	EmailJobMention        EmailJobKind = "mention"
)

// EmailJob is the queue envelope for one email notification send. The worker
// reloads the ticket/recipient from storage; the job carries identities, not
// entity snapshots, so a stale retry cannot resurrect overwritten state.
type EmailJob struct {
	JobID          string       `json:"job_id"`
	Kind           EmailJobKind `json:"kind"`
	OrganizationID string       `json:"organization_id"`
	TicketID       string       `json:"ticket_id"`
	MessageID      string       `json:"message_id,omitempty"`
	RecipientID    string       `json:"recipient_id"`
	OccurredAt     time.Time    `json:"occurred_at"`

	RetryCount int    `json:"retry_count"`
	TraceID    string `json:"trace_id"`
}
