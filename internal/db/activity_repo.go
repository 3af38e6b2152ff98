package db

import (
	"context"

	"ticketdesk/internal/types"
)

// ActivityRepository appends ticket activity-log rows. Activity writes are
// load-bearing: failures propagate to the caller and abort the transition,
// unlike notification enqueues which are best-effort.
type ActivityRepository struct {
	db DBTX
}

// NewActivityRepository creates a new ActivityRepository backed by the given
// database connection (pool or transaction).
func NewActivityRepository(db DBTX) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append inserts one activity record. If e.ID is empty the database generates
// it via the DEFAULT expression.
func (r *ActivityRepository) Append(ctx context.Context, e *types.ActivityEntry) error {
	if e.ID != "" {
		_, err := r.db.Exec(ctx,
			`INSERT INTO ticket_activity
			 (id, organization_id, ticket_id, kind, actor_user_id, old_value, new_value, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
			e.ID, e.OrganizationID, e.TicketID, string(e.Kind),
			nilIfEmpty(e.ActorUserID), nilIfEmpty(e.OldValue), nilIfEmpty(e.NewValue),
			nilIfZeroTime(e.CreatedAt),
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to append activity", err)
		}
		return nil
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO ticket_activity
		 (organization_id, ticket_id, kind, actor_user_id, old_value, new_value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		 RETURNING id, created_at`,
		e.OrganizationID, e.TicketID, string(e.Kind),
		nilIfEmpty(e.ActorUserID), nilIfEmpty(e.OldValue), nilIfEmpty(e.NewValue),
		nilIfZeroTime(e.CreatedAt),
	)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append activity", err)
	}
	return nil
}

// ListByTicket returns activity for a ticket, newest first.
func (r *ActivityRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]types.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, organization_id, ticket_id, kind,
		        COALESCE(actor_user_id, ''), COALESCE(old_value, ''), COALESCE(new_value, ''),
		        created_at
		 FROM ticket_activity
		 WHERE ticket_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		ticketID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list activity", err)
	}
	defer rows.Close()

	var out []types.ActivityEntry
	for rows.Next() {
		var e types.ActivityEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.TicketID, &kind,
			&e.ActorUserID, &e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan activity row", err)
		}
		e.Kind = types.ActivityKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate activity rows", err)
	}
	return out, nil
}
