package types

import (
	"time"
)

// Organization is the tenant. It owns tickets, email channels, webhooks, and
// the per-tenant defaults the dispatch engine reads at transition time.
type Organization struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// Defaults applied at ticket creation (never null after creation).
	DefaultStatusID     string `json:"default_status_id" db:"default_status_id"`
	DefaultOpenStatusID string `json:"default_open_status_id" db:"default_open_status_id"`
	DefaultPriorityID   string `json:"default_priority_id" db:"default_priority_id"`
	DefaultSLAID        string `json:"default_sla_id,omitempty" db:"default_sla_id"`

	// Settings read by the notification pipeline.
	SystemEmailsEnabled bool     `json:"system_emails_enabled" db:"system_emails_enabled"`
	Branding            Branding `json:"branding" db:"-"`

	// TicketSequence is the per-tenant counter behind ticket numbers.
	TicketSequence int64 `json:"-" db:"ticket_sequence"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// Branding holds the visual identity merged into outgoing notification emails.
type Branding struct {
	PrimaryColor string `json:"primary_color" db:"branding_primary_color"`
	LogoURL      string `json:"logo_url" db:"branding_logo_url"`
}

// Ticket is the aggregate root for a support case.
type Ticket struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	Number  string `json:"number" db:"number"`
	Subject string `json:"subject" db:"subject"`

	StatusID   string  `json:"status_id" db:"status_id"`
	PriorityID string  `json:"priority_id" db:"priority_id"`
	SLAID      string  `json:"sla_id,omitempty" db:"sla_id"`
	AssignedTo *string `json:"assigned_to,omitempty" db:"assigned_to"`
	FolderID   *string `json:"folder_id,omitempty" db:"folder_id"`

	ContactID    string  `json:"contact_id" db:"contact_id"`
	DepartmentID *string `json:"department_id,omitempty" db:"department_id"`
	ChannelID    *string `json:"channel_id,omitempty" db:"channel_id"`

	// Email threading anchors recorded when the ticket originated from email.
	EmailOriginalMessageID string `json:"-" db:"email_original_message_id"`
	EmailThreadID          string `json:"-" db:"email_thread_id"`

	// SLA bookkeeping.
	FirstResponseDueAt *time.Time `json:"first_response_due_at,omitempty" db:"first_response_due_at"`
	ResolutionDueAt    *time.Time `json:"resolution_due_at,omitempty" db:"resolution_due_at"`
	FirstResponseAt    *time.Time `json:"first_response_at,omitempty" db:"first_response_at"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Hydrated relations (not columns). Nil when not loaded.
	Status     *TicketStatus   `json:"status,omitempty" db:"-"`
	Priority   *TicketPriority `json:"priority,omitempty" db:"-"`
	SLA        *SLA            `json:"sla,omitempty" db:"-"`
	Assignee   *User           `json:"assignee,omitempty" db:"-"`
	Contact    *Contact        `json:"contact,omitempty" db:"-"`
	Department *Department     `json:"department,omitempty" db:"-"`
}

// PermalinkURL returns the dashboard URL for the ticket given the public base URL.
func (t *Ticket) PermalinkURL(baseURL string) string {
	return baseURL + "/tickets/" + t.ID
}

// TicketStatus is an organization-defined status value.
type TicketStatus struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
	IsClosed       bool   `json:"is_closed" db:"is_closed"`
}

// TicketPriority is an organization-defined priority value.
type TicketPriority struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
	Level          int    `json:"level" db:"level"`
}

// SLA defines response/resolution targets in hours.
type SLA struct {
	ID                 string `json:"id" db:"id"`
	OrganizationID     string `json:"organization_id" db:"organization_id"`
	Name               string `json:"name" db:"name"`
	FirstResponseHours int    `json:"first_response_hours" db:"first_response_hours"`
	ResolutionHours    int    `json:"resolution_hours" db:"resolution_hours"`
}

// Folder groups tickets in the dashboard. System folders are looked up by
// SystemType (e.g., "solved") rather than by name.
type Folder struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
	SystemType     string `json:"system_type,omitempty" db:"system_type"`
}

// Department is an organizational routing unit for tickets.
type Department struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
}

// Message belongs to exactly one ticket and is immutable after creation.
// For Reply messages exactly one of UserID/ContactID is populated.
type Message struct {
	ID               string      `json:"id" db:"id"`
	TicketID         string      `json:"ticket_id" db:"ticket_id"`
	OrganizationID   string      `json:"organization_id" db:"organization_id"`
	Type             MessageType `json:"type" db:"type"`
	IsFromContact    bool        `json:"is_from_contact" db:"is_from_contact"`
	UserID           *string     `json:"user_id,omitempty" db:"user_id"`
	ContactID        *string     `json:"contact_id,omitempty" db:"contact_id"`
	Body             string      `json:"body" db:"body"`
	AttachmentsCount int         `json:"attachments_count" db:"attachments_count"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`

	// Hydrated (not columns).
	Ticket  *Ticket  `json:"-" db:"-"`
	User    *User    `json:"user,omitempty" db:"-"`
	Contact *Contact `json:"contact,omitempty" db:"-"`
}

// IsReply reports whether the message is a customer or agent reply
// (as opposed to an internal note or system message).
func (m *Message) IsReply() bool { return m.Type == MessageReply }

// Contact is the customer side of a ticket.
type Contact struct {
	ID             string  `json:"id" db:"id"`
	OrganizationID string  `json:"organization_id" db:"organization_id"`
	Name           string  `json:"name" db:"name"`
	Email          string  `json:"email" db:"email"`
	SLAID          *string `json:"sla_id,omitempty" db:"sla_id"`
}

// User is an agent within an organization.
type User struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
	Handle         string `json:"handle" db:"handle"`
	Email          string `json:"email" db:"email"`
	// NotificationEmail overrides Email as the routing address when set.
	NotificationEmail string     `json:"notification_email,omitempty" db:"notification_email"`
	DeletedAt         *time.Time `json:"-" db:"deleted_at"`
}

// RoutingAddress returns the address notifications should be sent to:
// the explicit routing override when present, else the bare email field.
func (u *User) RoutingAddress() string {
	if u.NotificationEmail != "" {
		return u.NotificationEmail
	}
	return u.Email
}

// EmailChannel is a per-organization connected mailbox used to send and
// receive on behalf of the tenant.
type EmailChannel struct {
	ID             string            `json:"id" db:"id"`
	OrganizationID string            `json:"organization_id" db:"organization_id"`
	Provider       EmailProviderKind `json:"provider" db:"provider"`
	EmailAddress   string            `json:"email_address" db:"email_address"`
	DisplayName    string            `json:"display_name" db:"display_name"`
	IsActive       bool              `json:"is_active" db:"is_active"`
	IsDefault      bool              `json:"is_default" db:"is_default"`

	// OAuth material. Never serialized into payloads or logs.
	AccessToken    SecretString `json:"-" db:"access_token"`
	RefreshToken   SecretString `json:"-" db:"refresh_token"`
	TokenExpiresAt *time.Time   `json:"-" db:"token_expires_at"`
}

// Webhook is an organization-configured HTTP subscriber to domain events.
type Webhook struct {
	ID               string        `json:"id" db:"id"`
	OrganizationID   string        `json:"organization_id" db:"organization_id"`
	URL              string        `json:"url" db:"url"`
	IsActive         bool          `json:"is_active" db:"is_active"`
	SubscribedEvents []EventKind   `json:"subscribed_events" db:"subscribed_events"`
	Format           WebhookFormat `json:"format" db:"format"`
	Secret           SecretString  `json:"-" db:"secret"`
	DisabledReason   string        `json:"disabled_reason,omitempty" db:"disabled_reason"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// SubscribesTo reports whether the webhook's event set contains kind.
func (w *Webhook) SubscribesTo(kind EventKind) bool {
	for _, k := range w.SubscribedEvents {
		if k == kind {
			return true
		}
	}
	return false
}

// InboundIntegration holds the verify token and app secret for a Meta-style
// inbound webhook endpoint (messaging integrations).
type InboundIntegration struct {
	ID             string       `json:"id" db:"id"`
	OrganizationID string       `json:"organization_id" db:"organization_id"`
	Provider       string       `json:"provider" db:"provider"`
	IsActive       bool         `json:"is_active" db:"is_active"`
	VerifyToken    SecretString `json:"-" db:"verify_token"`
	AppSecret      SecretString `json:"-" db:"app_secret"`
}

// DeliveryLogEntry is the append-only audit record of a send attempt outcome.
// Entries are never updated or deleted by the dispatch engine.
type DeliveryLogEntry struct {
	ID        string         `json:"id" db:"id"`
	ChannelID string         `json:"channel_id" db:"channel_id"`
	Status    DeliveryStatus `json:"status" db:"status"`
	Subject   string         `json:"subject" db:"subject"`
	Recipient string         `json:"recipient" db:"recipient"`
	TicketID  string         `json:"ticket_id,omitempty" db:"ticket_id"`
	Error     string         `json:"error,omitempty" db:"error"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// ActivityEntry is one row of the ticket activity log. Activity writes happen
// before any notification/webhook enqueue so the audit trail stays consistent
// even when a later step fails.
type ActivityEntry struct {
	ID             string       `json:"id" db:"id"`
	OrganizationID string       `json:"organization_id" db:"organization_id"`
	TicketID       string       `json:"ticket_id" db:"ticket_id"`
	Kind           ActivityKind `json:"kind" db:"kind"`
	ActorUserID    string       `json:"actor_user_id,omitempty" db:"actor_user_id"`
	// Display values for "changed" activity; empty for creations.
	OldValue  string    `json:"old_value,omitempty" db:"old_value"`
	NewValue  string    `json:"new_value,omitempty" db:"new_value"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ThreadHeaders is the derived set of email threading headers. All fields are
// empty when the caller did not request threading, producing a fresh thread.
type ThreadHeaders struct {
	MessageID   string `json:"message_id,omitempty"`
	InReplyTo   string `json:"in_reply_to,omitempty"`
	References  string `json:"references,omitempty"`
	ThreadTopic string `json:"thread_topic,omitempty"`
	ThreadIndex string `json:"thread_index,omitempty"`
}

// IsZero reports whether no threading header is set.
func (h ThreadHeaders) IsZero() bool {
	return h == ThreadHeaders{}
}

// DeliveryResult is the outcome of a single channel delivery attempt.
type DeliveryResult struct {
	ProviderMessageID string
	Status            DeliveryStatus
	FailureReason     string
	Retryable         bool
	// Terminal marks failures where the subscriber itself must be disabled
	// (e.g., HTTP 410 Gone).
	Terminal   bool
	RetryAfter *time.Duration
}
