package db

import (
	"context"

	"github.com/google/uuid"

	"ticketdesk/internal/types"
)

// DeliveryLogRepository provides append-only access to the email delivery
// audit log. Entries record outcomes (success, failure, skip) and are never
// updated after insertion.
type DeliveryLogRepository struct {
	db DBTX
}

// NewDeliveryLogRepository creates a new DeliveryLogRepository backed by the
// given database connection (pool or transaction).
func NewDeliveryLogRepository(db DBTX) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Append inserts one delivery log entry, assigning an id when the caller did
// not provide one.
func (r *DeliveryLogRepository) Append(ctx context.Context, entry *types.DeliveryLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO delivery_log (id, channel_id, status, subject, recipient, ticket_id, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ChannelID, string(entry.Status), entry.Subject,
		entry.Recipient, nilIfEmpty(entry.TicketID), nilIfEmpty(entry.Error),
		entry.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append delivery log entry", err)
	}
	return nil
}

// ListByTicket returns the delivery history for a ticket, newest first.
func (r *DeliveryLogRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]types.DeliveryLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, channel_id, status, subject, recipient, COALESCE(ticket_id, ''), COALESCE(error, ''), created_at
		 FROM delivery_log
		 WHERE ticket_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		ticketID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list delivery log", err)
	}
	defer rows.Close()

	var out []types.DeliveryLogEntry
	for rows.Next() {
		var e types.DeliveryLogEntry
		var status string
		if err := rows.Scan(&e.ID, &e.ChannelID, &status, &e.Subject,
			&e.Recipient, &e.TicketID, &e.Error, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan delivery log row", err)
		}
		e.Status = types.DeliveryStatus(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate delivery log rows", err)
	}
	return out, nil
}
