package webhook

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"ticketdesk/internal/types"
)

// maxConcurrentEnqueues bounds the dispatch fan-out's parallel SQS sends.
const maxConcurrentEnqueues = 8

// SubscriptionStore loads active webhook subscriptions for an organization
// and event kind.
type SubscriptionStore interface {
	ListActiveByEvent(ctx context.Context, orgID string, kind types.EventKind) ([]*types.Webhook, error)
}

// JobEnqueuer publishes webhook delivery jobs for asynchronous execution.
type JobEnqueuer interface {
	PublishWebhook(ctx context.Context, job *types.WebhookJob, delay time.Duration) error
}

// Dispatcher fans a domain event out to every matching active webhook
// subscription. The payload is built exactly once per event; every subscriber
// receives an identical payload value and format-specific envelope wrapping
// happens at send time in the worker, not here.
//
// Dispatch is fire-and-forget: lookup and enqueue failures are logged and
// never propagate, so a broken webhook configuration cannot fail the
// triggering ticket or message mutation.
type Dispatcher struct {
	subscriptions SubscriptionStore
	publisher     JobEnqueuer
	tickets       *TicketPayloadBuilder
	messages      *MessagePayloadBuilder
	clock         types.Clock
	logger        types.Logger
}

// NewDispatcher creates a Dispatcher. dashboardURL is the public base URL
// used for ticket permalinks in payloads.
func NewDispatcher(
	subscriptions SubscriptionStore,
	publisher JobEnqueuer,
	dashboardURL string,
	clock types.Clock,
	logger types.Logger,
) *Dispatcher {
	tb := &TicketPayloadBuilder{DashboardURL: dashboardURL}
	return &Dispatcher{
		subscriptions: subscriptions,
		publisher:     publisher,
		tickets:       tb,
		messages:      &MessagePayloadBuilder{Tickets: tb},
		clock:         clock,
		logger:        logger,
	}
}

// TicketCreated dispatches the ticket.created event.
func (d *Dispatcher) TicketCreated(ctx context.Context, t *types.Ticket) {
	d.dispatch(ctx, t.OrganizationID, types.EventTicketCreated, d.tickets.ForCreated(t))
}

// TicketStatusChanged dispatches the ticket.status_changed event.
func (d *Dispatcher) TicketStatusChanged(ctx context.Context, t *types.Ticket, oldStatus, newStatus *types.TicketStatus) {
	d.dispatch(ctx, t.OrganizationID, types.EventTicketStatusChanged, d.tickets.ForStatusChanged(t, oldStatus, newStatus))
}

// TicketPriorityChanged dispatches the ticket.priority_changed event.
func (d *Dispatcher) TicketPriorityChanged(ctx context.Context, t *types.Ticket, oldPriority, newPriority *types.TicketPriority) {
	d.dispatch(ctx, t.OrganizationID, types.EventTicketPriorityChanged, d.tickets.ForPriorityChanged(t, oldPriority, newPriority))
}

// TicketAssigned dispatches the ticket.assigned event.
func (d *Dispatcher) TicketAssigned(ctx context.Context, t *types.Ticket, oldAssignee, newAssignee *types.User) {
	d.dispatch(ctx, t.OrganizationID, types.EventTicketAssigned, d.tickets.ForAssigned(t, oldAssignee, newAssignee))
}

// TicketSLAChanged dispatches the ticket.sla_changed event.
func (d *Dispatcher) TicketSLAChanged(ctx context.Context, t *types.Ticket, oldSLA, newSLA *types.SLA) {
	d.dispatch(ctx, t.OrganizationID, types.EventTicketSLAChanged, d.tickets.ForSLAChanged(t, oldSLA, newSLA))
}

// MessageCreated dispatches the message.created event.
func (d *Dispatcher) MessageCreated(ctx context.Context, t *types.Ticket, m *types.Message) {
	d.dispatch(ctx, t.OrganizationID, types.EventMessageCreated, d.messages.ForCreated(t, m))
}

// ReplyReceived dispatches the reply.received event.
func (d *Dispatcher) ReplyReceived(ctx context.Context, t *types.Ticket, m *types.Message) {
	d.dispatch(ctx, t.OrganizationID, types.EventReplyReceived, d.messages.ForReplyReceived(t, m))
}

// dispatch serializes the payload, loads matching subscribers, and enqueues
// one job per subscriber. Exactly one job is produced per (event, subscriber)
// pair per call.
func (d *Dispatcher) dispatch(ctx context.Context, orgID string, kind types.EventKind, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("webhook payload marshal failed",
			"organization_id", orgID,
			"event_kind", string(kind),
			"error", err.Error(),
		)
		return
	}

	subscribers, err := d.subscriptions.ListActiveByEvent(ctx, orgID, kind)
	if err != nil {
		d.logger.Warn("webhook subscriber lookup failed",
			"organization_id", orgID,
			"event_kind", string(kind),
			"error", err.Error(),
		)
		return
	}
	if len(subscribers) == 0 {
		return
	}

	occurredAt := d.clock.Now()
	traceID := types.GetRequestID(ctx)

	// Enqueues are independent per subscriber; run them concurrently with a
	// bound so a large fan-out cannot exhaust connections. Failures are
	// logged per subscriber and never collected into a group error.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEnqueues)

	for _, sub := range subscribers {
		job := &types.WebhookJob{
			WebhookID:      sub.ID,
			OrganizationID: orgID,
			EventKind:      kind,
			Payload:        raw,
			OccurredAt:     occurredAt,
			TraceID:        traceID,
		}
		g.Go(func() error {
			if err := d.publisher.PublishWebhook(gctx, job, 0); err != nil {
				d.logger.Warn("webhook job enqueue failed",
					"organization_id", orgID,
					"webhook_id", job.WebhookID,
					"event_kind", string(kind),
					"error", err.Error(),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
