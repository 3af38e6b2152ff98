package tickets

import (
	"context"
	"time"

	"ticketdesk/internal/types"
)

// ApplyUpdate diffs two loaded snapshots of the same ticket and returns the
// ordered effect list for every watched field that changed. Branches are
// independent; several may fire for one update. Both snapshots must carry
// hydrated Status/Priority/SLA/Assignee relations so activity rows can record
// display names.
//
// The returned list puts quiet saves first, then activity rows, then
// notification and webhook effects, keeping the audit trail consistent when a
// later best-effort step fails.
func ApplyUpdate(opCtx types.OperationContext, old, updated *types.Ticket, now time.Time) []Effect {
	var saves, activity, dispatch []Effect

	if old.StatusID != updated.StatusID {
		activity = append(activity, ActivityEffect{Entry: types.ActivityEntry{
			OrganizationID: updated.OrganizationID,
			TicketID:       updated.ID,
			Kind:           types.ActivityStatusChanged,
			ActorUserID:    opCtx.ActorUserID,
			OldValue:       statusName(old.Status),
			NewValue:       statusName(updated.Status),
			CreatedAt:      now,
		}})
		if updated.Status != nil && updated.Status.IsClosed && old.ResolvedAt == nil {
			saves = append(saves, ResolveEffect{TicketID: updated.ID, ResolvedAt: now})
		}
		oldStatus, newStatus := old.Status, updated.Status
		dispatch = append(dispatch, WebhookEffect{
			Kind: types.EventTicketStatusChanged,
			Dispatch: func(ctx context.Context, d WebhookDispatcher) {
				d.TicketStatusChanged(ctx, updated, oldStatus, newStatus)
			},
		})
	}

	if old.PriorityID != updated.PriorityID {
		activity = append(activity, ActivityEffect{Entry: types.ActivityEntry{
			OrganizationID: updated.OrganizationID,
			TicketID:       updated.ID,
			Kind:           types.ActivityPriorityChanged,
			ActorUserID:    opCtx.ActorUserID,
			OldValue:       priorityName(old.Priority),
			NewValue:       priorityName(updated.Priority),
			CreatedAt:      now,
		}})
		oldPriority, newPriority := old.Priority, updated.Priority
		dispatch = append(dispatch, WebhookEffect{
			Kind: types.EventTicketPriorityChanged,
			Dispatch: func(ctx context.Context, d WebhookDispatcher) {
				d.TicketPriorityChanged(ctx, updated, oldPriority, newPriority)
			},
		})
	}

	if !equalPtr(old.AssignedTo, updated.AssignedTo) {
		activity = append(activity, ActivityEffect{Entry: types.ActivityEntry{
			OrganizationID: updated.OrganizationID,
			TicketID:       updated.ID,
			Kind:           types.ActivityAssigneeChanged,
			ActorUserID:    opCtx.ActorUserID,
			OldValue:       userName(old.Assignee),
			NewValue:       userName(updated.Assignee),
			CreatedAt:      now,
		}})
		if updated.AssignedTo != nil {
			dispatch = append(dispatch, EmailJobEffect{Job: types.EmailJob{
				Kind:           types.EmailJobTicketAssigned,
				OrganizationID: updated.OrganizationID,
				TicketID:       updated.ID,
				RecipientID:    *updated.AssignedTo,
				OccurredAt:     now,
			}})
		}
		oldAssignee, newAssignee := old.Assignee, updated.Assignee
		dispatch = append(dispatch, WebhookEffect{
			Kind: types.EventTicketAssigned,
			Dispatch: func(ctx context.Context, d WebhookDispatcher) {
				d.TicketAssigned(ctx, updated, oldAssignee, newAssignee)
			},
		})
	}

	if old.SLAID != updated.SLAID {
		activity = append(activity, ActivityEffect{Entry: types.ActivityEntry{
			OrganizationID: updated.OrganizationID,
			TicketID:       updated.ID,
			Kind:           types.ActivitySLAChanged,
			ActorUserID:    opCtx.ActorUserID,
			OldValue:       slaName(old.SLA),
			NewValue:       slaName(updated.SLA),
			CreatedAt:      now,
		}})
		firstDue, resDue := dueDates(updated.SLA, now)
		saves = append(saves, DueDatesEffect{
			TicketID:         updated.ID,
			FirstResponseDue: firstDue,
			ResolutionDue:    resDue,
		})
		oldSLA, newSLA := old.SLA, updated.SLA
		dispatch = append(dispatch, WebhookEffect{
			Kind: types.EventTicketSLAChanged,
			Dispatch: func(ctx context.Context, d WebhookDispatcher) {
				d.TicketSLAChanged(ctx, updated, oldSLA, newSLA)
			},
		})
	}

	out := make([]Effect, 0, len(saves)+len(activity)+len(dispatch))
	out = append(out, saves...)
	out = append(out, activity...)
	out = append(out, dispatch...)
	return out
}

// OnCreated returns the post-persistence effects of a new ticket: one
// activity row, one ticket-created notification job and the webhook
// dispatch. The email worker resolves the actual recipients; the recipient
// hint is the assignee when one was set at creation.
func OnCreated(opCtx types.OperationContext, t *types.Ticket, now time.Time) []Effect {
	effects := []Effect{
		ActivityEffect{Entry: types.ActivityEntry{
			OrganizationID: t.OrganizationID,
			TicketID:       t.ID,
			Kind:           types.ActivityCreated,
			ActorUserID:    opCtx.ActorUserID,
			CreatedAt:      now,
		}},
	}
	job := types.EmailJob{
		Kind:           types.EmailJobTicketCreated,
		OrganizationID: t.OrganizationID,
		TicketID:       t.ID,
		OccurredAt:     now,
	}
	if t.AssignedTo != nil {
		job.RecipientID = *t.AssignedTo
	}
	effects = append(effects, EmailJobEffect{Job: job})
	effects = append(effects, WebhookEffect{
		Kind: types.EventTicketCreated,
		Dispatch: func(ctx context.Context, d WebhookDispatcher) {
			d.TicketCreated(ctx, t)
		},
	})
	return effects
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func statusName(s *types.TicketStatus) string {
	if s == nil {
		return ""
	}
	return s.Name
}

func priorityName(p *types.TicketPriority) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func userName(u *types.User) string {
	if u == nil {
		return ""
	}
	return u.Name
}

func slaName(s *types.SLA) string {
	if s == nil {
		return ""
	}
	return s.Name
}
