package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ticketdesk/internal/types"
)

// TicketRepository provides data access for the tickets table. Beyond the
// standard reads it exposes the "quiet save" write paths the transition
// pipeline uses for follow-up mutations (resolved stamps, SLA due dates,
// folder moves). These UPDATE exactly the named columns and never re-enter
// the transition pipeline, so observer recursion is structurally impossible.
type TicketRepository struct {
	db DBTX
}

// NewTicketRepository creates a new TicketRepository backed by the given
// database connection (pool or transaction).
func NewTicketRepository(db DBTX) *TicketRepository {
	return &TicketRepository{db: db}
}

// GetByID loads a ticket row. Relations are not hydrated; callers needing
// status/contact/assignee use the directory repositories.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*types.Ticket, error) {
	var t types.Ticket
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, number, subject, status_id, priority_id,
		        COALESCE(sla_id, ''), assigned_to, folder_id, contact_id,
		        department_id, channel_id,
		        COALESCE(email_original_message_id, ''), COALESCE(email_thread_id, ''),
		        first_response_due_at, resolution_due_at, first_response_at,
		        resolved_at, created_at, updated_at
		 FROM tickets WHERE id = $1`,
		id,
	).Scan(
		&t.ID, &t.OrganizationID, &t.Number, &t.Subject, &t.StatusID, &t.PriorityID,
		&t.SLAID, &t.AssignedTo, &t.FolderID, &t.ContactID,
		&t.DepartmentID, &t.ChannelID,
		&t.EmailOriginalMessageID, &t.EmailThreadID,
		&t.FirstResponseDueAt, &t.ResolutionDueAt, &t.FirstResponseAt,
		&t.ResolvedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTicket, fmt.Sprintf("ticket %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load ticket", err)
	}
	return &t, nil
}

// NextTicketNumber atomically advances the organization's ticket sequence and
// returns the formatted number. The increment happens inside the creation
// transaction, so numbers are organization-unique and in sequence order.
func (r *TicketRepository) NextTicketNumber(ctx context.Context, orgID string) (string, error) {
	var seq int64
	err := r.db.QueryRow(ctx,
		`UPDATE organizations SET ticket_sequence = ticket_sequence + 1
		 WHERE id = $1
		 RETURNING ticket_sequence`,
		orgID,
	).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundOrg, fmt.Sprintf("organization %s not found", orgID), err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to advance ticket sequence", err)
	}
	return fmt.Sprintf("TKT-%d", seq), nil
}

// Insert persists a prepared ticket. PrepareCreate must have run first so
// number/status/priority are populated.
func (r *TicketRepository) Insert(ctx context.Context, t *types.Ticket) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tickets
		 (id, organization_id, number, subject, status_id, priority_id, sla_id,
		  assigned_to, folder_id, contact_id, department_id, channel_id,
		  email_original_message_id, email_thread_id,
		  first_response_due_at, resolution_due_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())`,
		t.ID, t.OrganizationID, t.Number, t.Subject, t.StatusID, t.PriorityID,
		nilIfEmpty(t.SLAID), t.AssignedTo, t.FolderID, t.ContactID,
		t.DepartmentID, t.ChannelID,
		nilIfEmpty(t.EmailOriginalMessageID), nilIfEmpty(t.EmailThreadID),
		t.FirstResponseDueAt, t.ResolutionDueAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert ticket", err)
	}
	return nil
}

// SetResolved stamps resolved_at and moves the ticket into the given folder.
// Quiet save: only the named columns change.
func (r *TicketRepository) SetResolved(ctx context.Context, ticketID string, resolvedAt time.Time, folderID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tickets SET resolved_at = $2, folder_id = $3, updated_at = NOW()
		 WHERE id = $1`,
		ticketID, resolvedAt, folderID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark ticket resolved", err)
	}
	return nil
}

// Reopen clears resolved_at and folder_id and resets the status in a single
// quiet save. Used when a reply arrives on a closed ticket.
func (r *TicketRepository) Reopen(ctx context.Context, ticketID string, openStatusID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tickets SET status_id = $2, resolved_at = NULL, folder_id = NULL,
		        updated_at = NOW()
		 WHERE id = $1`,
		ticketID, openStatusID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reopen ticket", err)
	}
	return nil
}

// ClearFolder returns the ticket to the default inbox. Quiet save.
func (r *TicketRepository) ClearFolder(ctx context.Context, ticketID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tickets SET folder_id = NULL, updated_at = NOW() WHERE id = $1`,
		ticketID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear ticket folder", err)
	}
	return nil
}

// SetSLADueDates rewrites the SLA due-date columns. Quiet save.
func (r *TicketRepository) SetSLADueDates(ctx context.Context, ticketID string, firstResponseDue, resolutionDue *time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tickets
		 SET first_response_due_at = $2, resolution_due_at = $3, updated_at = NOW()
		 WHERE id = $1`,
		ticketID, firstResponseDue, resolutionDue,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set SLA due dates", err)
	}
	return nil
}

// SetFirstResponseAt stamps first_response_at iff it is still empty, keeping
// the write idempotent under job retries. Quiet save.
func (r *TicketRepository) SetFirstResponseAt(ctx context.Context, ticketID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tickets SET first_response_at = $2, updated_at = NOW()
		 WHERE id = $1 AND first_response_at IS NULL`,
		ticketID, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to stamp first response", err)
	}
	return nil
}
