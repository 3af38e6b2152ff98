package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ticketdesk/internal/types"
)

// MessageRepository provides data access for the ticket_messages table. The
// email worker uses it to reload message content when rendering reply and
// mention notifications; the job envelope carries only identities.
type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// GetByID loads a message row. The Ticket/User/Contact relations are not
// hydrated; callers fetch those through their own repositories.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*types.Message, error) {
	var m types.Message
	err := r.db.QueryRow(ctx,
		`SELECT id, ticket_id, organization_id, type, is_from_contact,
		        user_id, contact_id, body, attachments_count, created_at
		 FROM ticket_messages WHERE id = $1`,
		id,
	).Scan(
		&m.ID, &m.TicketID, &m.OrganizationID, &m.Type, &m.IsFromContact,
		&m.UserID, &m.ContactID, &m.Body, &m.AttachmentsCount, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMessage, fmt.Sprintf("message %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load message", err)
	}
	return &m, nil
}
