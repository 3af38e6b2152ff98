package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ticketdesk/internal/types"
)

// WebhookRepository provides data access for the webhooks table.
//
// ListActiveByEvent deliberately bypasses tenant-scoping middleware: the
// dispatcher is an internal fan-out, not a tenant-facing query, and already
// pins the organization id itself.
type WebhookRepository struct {
	db DBTX
}

// NewWebhookRepository creates a new WebhookRepository backed by the given
// database connection (pool or transaction).
func NewWebhookRepository(db DBTX) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// GetByID loads a single webhook, secret included.
func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*types.Webhook, error) {
	var w types.Webhook
	var format, secret string
	var events []string
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, url, is_active, subscribed_events, format,
		        secret, COALESCE(disabled_reason, ''), created_at
		 FROM webhooks WHERE id = $1`,
		id,
	).Scan(&w.ID, &w.OrganizationID, &w.URL, &w.IsActive, &events, &format,
		&secret, &w.DisabledReason, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundWebhook, fmt.Sprintf("webhook %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load webhook", err)
	}
	w.Format = types.WebhookFormat(format)
	w.Secret = types.SecretString(secret)
	w.SubscribedEvents = toEventKinds(events)
	return &w, nil
}

// ListActiveByEvent returns all active webhooks of the organization whose
// subscribed_events set contains the given kind.
func (r *WebhookRepository) ListActiveByEvent(ctx context.Context, orgID string, kind types.EventKind) ([]*types.Webhook, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, organization_id, url, is_active, subscribed_events, format,
		        secret, COALESCE(disabled_reason, ''), created_at
		 FROM webhooks
		 WHERE organization_id = $1 AND is_active AND $2 = ANY(subscribed_events)
		 ORDER BY created_at`,
		orgID, string(kind),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list webhooks", err)
	}
	defer rows.Close()

	var out []*types.Webhook
	for rows.Next() {
		var w types.Webhook
		var format, secret string
		var events []string
		if err := rows.Scan(&w.ID, &w.OrganizationID, &w.URL, &w.IsActive, &events,
			&format, &secret, &w.DisabledReason, &w.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan webhook row", err)
		}
		w.Format = types.WebhookFormat(format)
		w.Secret = types.SecretString(secret)
		w.SubscribedEvents = toEventKinds(events)
		out = append(out, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate webhook rows", err)
	}
	return out, nil
}

// Disable deactivates a webhook permanently, recording the reason. Used by
// the delivery worker on HTTP 410 Gone.
func (r *WebhookRepository) Disable(ctx context.Context, id string, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE webhooks SET is_active = FALSE, disabled_reason = $2 WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to disable webhook", err)
	}
	return nil
}

func toEventKinds(events []string) []types.EventKind {
	kinds := make([]types.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, types.EventKind(e))
	}
	return kinds
}
