// Package tickets implements the state-transition core of the dispatch
// engine: explicit transition functions compute the consequences of a ticket
// or message mutation as an ordered effect list, and a Service applies that
// list. Persistence effects (activity rows, quiet saves) are load-bearing and
// propagate errors; notification and webhook effects are best-effort and are
// logged and swallowed. Quiet saves go through dedicated repository write
// paths that update named columns only, so applying effects can never
// re-enter the transition functions.
package tickets

import (
	"context"
	"time"

	"ticketdesk/internal/types"
)

// Effect is one consequence of a transition. The concrete types below form a
// closed set; Service.Apply type-switches over them.
type Effect interface {
	isEffect()
}

// ActivityEffect appends an activity-log row. Load-bearing: a failure aborts
// the remaining effects.
type ActivityEffect struct {
	Entry types.ActivityEntry
}

// ResolveEffect stamps resolvedAt and files the ticket into the
// organization's solved folder. Emitted at most once per closing transition.
type ResolveEffect struct {
	TicketID   string
	ResolvedAt time.Time
}

// ReopenEffect resets a closed ticket to the organization's default open
// status, clearing resolvedAt and the folder in the same quiet save.
type ReopenEffect struct {
	TicketID     string
	OpenStatusID string
}

// ClearFolderEffect returns the ticket to the default inbox.
type ClearFolderEffect struct {
	TicketID string
}

// FirstResponseEffect stamps firstResponseAt. The repository write is
// conditional on the column being empty, so replays are harmless.
type FirstResponseEffect struct {
	TicketID string
	At       time.Time
}

// DueDatesEffect rewrites the SLA due-date columns.
type DueDatesEffect struct {
	TicketID         string
	FirstResponseDue *time.Time
	ResolutionDue    *time.Time
}

// EmailJobEffect enqueues one email notification job. Best-effort.
type EmailJobEffect struct {
	Job types.EmailJob
}

// MentionEffect fans out mention notifications for the given handles. The
// Service resolves handles to users and deduplicates before enqueueing.
// Best-effort.
type MentionEffect struct {
	OrganizationID string
	TicketID       string
	MessageID      string
	AuthorUserID   string
	Handles        []string
}

// WebhookEffect invokes one dispatcher entry point. Kind identifies the
// event for logging and tests; Dispatch performs the actual fan-out.
// Best-effort and non-blocking (the dispatcher only enqueues).
type WebhookEffect struct {
	Kind     types.EventKind
	Dispatch func(ctx context.Context, d WebhookDispatcher)
}

func (ActivityEffect) isEffect()      {}
func (ResolveEffect) isEffect()       {}
func (ReopenEffect) isEffect()        {}
func (ClearFolderEffect) isEffect()   {}
func (FirstResponseEffect) isEffect() {}
func (DueDatesEffect) isEffect()      {}
func (EmailJobEffect) isEffect()      {}
func (MentionEffect) isEffect()       {}
func (WebhookEffect) isEffect()       {}

// WebhookDispatcher is the set of fan-out entry points the transition
// pipeline invokes. Implementations never block on network I/O and never
// return errors to the caller; failures are logged inside the dispatcher.
type WebhookDispatcher interface {
	TicketCreated(ctx context.Context, t *types.Ticket)
	TicketStatusChanged(ctx context.Context, t *types.Ticket, oldStatus, newStatus *types.TicketStatus)
	TicketPriorityChanged(ctx context.Context, t *types.Ticket, oldPriority, newPriority *types.TicketPriority)
	TicketAssigned(ctx context.Context, t *types.Ticket, oldAssignee, newAssignee *types.User)
	TicketSLAChanged(ctx context.Context, t *types.Ticket, oldSLA, newSLA *types.SLA)
	MessageCreated(ctx context.Context, t *types.Ticket, m *types.Message)
	ReplyReceived(ctx context.Context, t *types.Ticket, m *types.Message)
}

// dueDates computes the SLA due-date pair from a reference time. A nil SLA
// yields nil due dates.
func dueDates(sla *types.SLA, from time.Time) (firstResponse, resolution *time.Time) {
	if sla == nil {
		return nil, nil
	}
	if sla.FirstResponseHours > 0 {
		t := from.Add(time.Duration(sla.FirstResponseHours) * time.Hour)
		firstResponse = &t
	}
	if sla.ResolutionHours > 0 {
		t := from.Add(time.Duration(sla.ResolutionHours) * time.Hour)
		resolution = &t
	}
	return firstResponse, resolution
}
