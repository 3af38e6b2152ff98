package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ticketdesk/internal/types"
)

// ChannelRepository provides data access for connected email channels.
type ChannelRepository struct {
	db DBTX
}

// NewChannelRepository creates a new ChannelRepository backed by the given
// database connection (pool or transaction).
func NewChannelRepository(db DBTX) *ChannelRepository {
	return &ChannelRepository{db: db}
}

const channelColumns = `id, organization_id, provider, email_address,
	COALESCE(display_name, ''), is_active, is_default,
	COALESCE(access_token, ''), COALESCE(refresh_token, ''), token_expires_at`

// GetByID loads a single channel, token material included.
func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*types.EmailChannel, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM email_channels WHERE id = $1`, id)
	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundChannel, fmt.Sprintf("email channel %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load email channel", err)
	}
	return ch, nil
}

// ResolveForTicket picks the sending channel for a ticket. Preference order:
// the ticket's bound channel when it is still active, then the organization's
// active default, then any active channel. Returns nil (no error) when the
// organization has no usable channel at all.
func (r *ChannelRepository) ResolveForTicket(ctx context.Context, orgID string, boundChannelID string) (*types.EmailChannel, error) {
	if boundChannelID != "" {
		row := r.db.QueryRow(ctx,
			`SELECT `+channelColumns+` FROM email_channels WHERE id = $1 AND is_active`,
			boundChannelID)
		ch, err := scanChannel(row)
		if err == nil {
			return ch, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve bound channel", err)
		}
		// Bound channel gone or deactivated, fall through to org lookup.
	}

	row := r.db.QueryRow(ctx,
		`SELECT `+channelColumns+`
		 FROM email_channels
		 WHERE organization_id = $1 AND is_active
		 ORDER BY is_default DESC, created_at
		 LIMIT 1`,
		orgID)
	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve organization channel", err)
	}
	return ch, nil
}

func scanChannel(row pgx.Row) (*types.EmailChannel, error) {
	var ch types.EmailChannel
	var provider, access, refresh string
	err := row.Scan(&ch.ID, &ch.OrganizationID, &provider, &ch.EmailAddress,
		&ch.DisplayName, &ch.IsActive, &ch.IsDefault, &access, &refresh,
		&ch.TokenExpiresAt)
	if err != nil {
		return nil, err
	}
	ch.Provider = types.EmailProviderKind(provider)
	ch.AccessToken = types.SecretString(access)
	ch.RefreshToken = types.SecretString(refresh)
	return &ch, nil
}
