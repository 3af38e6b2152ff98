package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ticketdesk/internal/types"
)

// DirectoryRepository bundles the read-mostly lookup tables the notification
// pipeline hydrates payloads from: organizations, users, contacts, folders,
// statuses, priorities and SLAs. These rows change rarely and the pipeline
// only ever reads them.
type DirectoryRepository struct {
	db DBTX
}

// NewDirectoryRepository creates a new DirectoryRepository backed by the
// given database connection (pool or transaction).
func NewDirectoryRepository(db DBTX) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetOrganization loads an organization with its notification settings,
// branding and creation defaults.
func (r *DirectoryRepository) GetOrganization(ctx context.Context, id string) (*types.Organization, error) {
	var org types.Organization
	err := r.db.QueryRow(ctx,
		`SELECT id, name, default_status_id, default_open_status_id, default_priority_id,
		        COALESCE(default_sla_id, ''), system_emails_enabled,
		        COALESCE(branding_primary_color, ''), COALESCE(branding_logo_url, ''),
		        ticket_sequence, created_at, updated_at
		 FROM organizations WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(&org.ID, &org.Name, &org.DefaultStatusID, &org.DefaultOpenStatusID,
		&org.DefaultPriorityID, &org.DefaultSLAID, &org.SystemEmailsEnabled,
		&org.Branding.PrimaryColor, &org.Branding.LogoURL,
		&org.TicketSequence, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrg, fmt.Sprintf("organization %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load organization", err)
	}
	return &org, nil
}

// GetUser loads an agent by id. Soft-deleted users are still returned so
// historical activity and payloads can name them.
func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (*types.User, error) {
	var u types.User
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, name, handle, email, COALESCE(notification_email, ''), deleted_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Handle, &u.Email, &u.NotificationEmail, &u.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, fmt.Sprintf("user %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load user", err)
	}
	return &u, nil
}

// GetUsersByHandles resolves @mention handles to active users within one
// organization. Handles without a matching user are silently absent from the
// result; mention fan-out treats them as plain text.
func (r *DirectoryRepository) GetUsersByHandles(ctx context.Context, orgID string, handles []string) ([]types.User, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, organization_id, name, handle, email, COALESCE(notification_email, ''), deleted_at
		 FROM users
		 WHERE organization_id = $1 AND handle = ANY($2) AND deleted_at IS NULL`,
		orgID, handles,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve user handles", err)
	}
	defer rows.Close()

	var out []types.User
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Handle, &u.Email,
			&u.NotificationEmail, &u.DeletedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user row", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate user rows", err)
	}
	return out, nil
}

// GetContact loads a contact by id.
func (r *DirectoryRepository) GetContact(ctx context.Context, id string) (*types.Contact, error) {
	var c types.Contact
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, name, email, sla_id
		 FROM contacts WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Email, &c.SLAID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundContact, fmt.Sprintf("contact %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load contact", err)
	}
	return &c, nil
}

// GetSystemFolder returns the organization's folder of the given system type,
// e.g. the "solved" folder closed tickets are filed into.
func (r *DirectoryRepository) GetSystemFolder(ctx context.Context, orgID string, systemType string) (*types.Folder, error) {
	var f types.Folder
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, name, COALESCE(system_type, '')
		 FROM folders WHERE organization_id = $1 AND system_type = $2`,
		orgID, systemType,
	).Scan(&f.ID, &f.OrganizationID, &f.Name, &f.SystemType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundFolder, fmt.Sprintf("no %s folder for organization %s", systemType, orgID), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load system folder", err)
	}
	return &f, nil
}

// GetStatus loads a ticket status definition.
func (r *DirectoryRepository) GetStatus(ctx context.Context, id string) (*types.TicketStatus, error) {
	var s types.TicketStatus
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, name, is_closed FROM ticket_statuses WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.OrganizationID, &s.Name, &s.IsClosed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTicket, fmt.Sprintf("ticket status %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load ticket status", err)
	}
	return &s, nil
}

// GetPriority loads a ticket priority definition.
func (r *DirectoryRepository) GetPriority(ctx context.Context, id string) (*types.TicketPriority, error) {
	var p types.TicketPriority
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, name, level FROM ticket_priorities WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTicket, fmt.Sprintf("ticket priority %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load ticket priority", err)
	}
	return &p, nil
}

// GetSLA loads an SLA definition.
func (r *DirectoryRepository) GetSLA(ctx context.Context, id string) (*types.SLA, error) {
	var s types.SLA
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, name, first_response_hours, resolution_hours
		 FROM slas WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.OrganizationID, &s.Name, &s.FirstResponseHours, &s.ResolutionHours)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTicket, fmt.Sprintf("sla %s not found", id), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load sla", err)
	}
	return &s, nil
}

// GetInboundIntegration loads the active inbound integration for a provider,
// used by the inbound verification endpoints to fetch the verify token and
// app secret.
func (r *DirectoryRepository) GetInboundIntegration(ctx context.Context, orgID string, provider string) (*types.InboundIntegration, error) {
	var in types.InboundIntegration
	var token, secret string
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, provider, is_active, verify_token, app_secret
		 FROM inbound_integrations
		 WHERE organization_id = $1 AND provider = $2 AND is_active`,
		orgID, provider,
	).Scan(&in.ID, &in.OrganizationID, &in.Provider, &in.IsActive, &token, &secret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundIntegration, fmt.Sprintf("no active %s integration for organization %s", provider, orgID), err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load inbound integration", err)
	}
	in.VerifyToken = types.SecretString(token)
	in.AppSecret = types.SecretString(secret)
	return &in, nil
}
