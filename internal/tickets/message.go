package tickets

import (
	"context"
	"time"

	"ticketdesk/internal/types"
)

// OnMessageCreated returns the ordered effect list for a freshly persisted
// message. The ticket snapshot must carry a hydrated Status relation; org
// supplies the default open status used when a reply reopens a closed
// ticket.
//
// Order matters: quiet saves first, then the activity row, then the
// best-effort notification and webhook effects.
func OnMessageCreated(opCtx types.OperationContext, org *types.Organization, t *types.Ticket, m *types.Message, now time.Time) []Effect {
	var effects []Effect

	// A reply stamps the first-response time once. The repository write is
	// conditional, so a replay after the stamp is a no-op.
	if m.IsReply() && t.FirstResponseAt == nil {
		effects = append(effects, FirstResponseEffect{TicketID: t.ID, At: now})
	}

	// Any reply pulls the ticket back into the default inbox. If the ticket
	// was closed it also reopens; reopen clears the folder itself, so only
	// one quiet save is ever emitted here.
	if m.IsReply() {
		closed := t.Status != nil && t.Status.IsClosed
		switch {
		case closed:
			effects = append(effects, ReopenEffect{TicketID: t.ID, OpenStatusID: org.DefaultOpenStatusID})
		case t.FolderID != nil:
			effects = append(effects, ClearFolderEffect{TicketID: t.ID})
		}
	}

	effects = append(effects, ActivityEffect{Entry: types.ActivityEntry{
		OrganizationID: t.OrganizationID,
		TicketID:       t.ID,
		Kind:           activityKindFor(m),
		ActorUserID:    opCtx.ActorUserID,
		CreatedAt:      now,
	}})

	effects = append(effects, EmailJobEffect{Job: types.EmailJob{
		Kind:           types.EmailJobMessagePosted,
		OrganizationID: t.OrganizationID,
		TicketID:       t.ID,
		MessageID:      m.ID,
		OccurredAt:     now,
	}})

	// Mentions fire only for agent-authored messages with a known author.
	if !m.IsFromContact && m.UserID != nil {
		if handles := ParseMentions(m.Body); len(handles) > 0 {
			effects = append(effects, MentionEffect{
				OrganizationID: t.OrganizationID,
				TicketID:       t.ID,
				MessageID:      m.ID,
				AuthorUserID:   *m.UserID,
				Handles:        handles,
			})
		}
	}

	effects = append(effects, WebhookEffect{
		Kind: types.EventMessageCreated,
		Dispatch: func(ctx context.Context, d WebhookDispatcher) {
			d.MessageCreated(ctx, t, m)
		},
	})

	// A contact reply additionally fires the reply-received event; both
	// dispatches may run for the same message.
	if m.IsReply() && m.IsFromContact {
		effects = append(effects, WebhookEffect{
			Kind: types.EventReplyReceived,
			Dispatch: func(ctx context.Context, d WebhookDispatcher) {
				d.ReplyReceived(ctx, t, m)
			},
		})
	}

	return effects
}

// activityKindFor derives the activity subtype from authorship and type.
func activityKindFor(m *types.Message) types.ActivityKind {
	switch {
	case m.Type == types.MessageReply && m.IsFromContact:
		return types.ActivityCustomerReply
	case m.Type == types.MessageReply:
		return types.ActivityAgentReply
	case m.Type == types.MessageNote:
		return types.ActivityNote
	default:
		return types.ActivitySystem
	}
}
