// Package webhook implements outbound webhook dispatch: payload building,
// per-organization subscriber fan-out, format-specific envelopes (standard,
// Slack, Discord), HMAC signing, and HTTP delivery with SSRF protection.
package webhook

import (
	"time"

	"ticketdesk/internal/types"
)

// EntityRef is the shallow projection used for status, priority, SLA and
// department values in payloads. Consumers never receive the full entity.
type EntityRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PersonRef is the shallow projection for users and contacts.
type PersonRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Author is the polymorphic message author. Kind is "contact" or "user"
// depending on which side authored the message.
type Author struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// FieldChange records a watched-field transition. Either side may be null
// (e.g., unassignment has a null To).
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// TicketSummary is the ticket sub-object shared by every ticket payload.
type TicketSummary struct {
	ID         string     `json:"id"`
	Number     string     `json:"number"`
	Subject    string     `json:"subject"`
	URL        string     `json:"url"`
	Status     *EntityRef `json:"status"`
	Priority   *EntityRef `json:"priority"`
	Assignee   *PersonRef `json:"assignee"`
	SLA        *EntityRef `json:"sla"`
	Department *EntityRef `json:"department"`
}

// TicketPayload is the data block for ticket lifecycle events. Changes is
// present only on the "changed" variants.
type TicketPayload struct {
	Ticket  TicketSummary          `json:"ticket"`
	Changes map[string]FieldChange `json:"changes,omitempty"`
}

// MessageSummary is the message sub-object for message events.
type MessageSummary struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	IsFromContact  bool      `json:"is_from_contact"`
	Author         *Author   `json:"author"`
	HasAttachments bool      `json:"has_attachments"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessagePayload is the data block for message.created and reply.received.
// Contact is populated only for reply.received, identifying which customer
// replied regardless of how authorship is encoded on the message.
type MessagePayload struct {
	Message MessageSummary `json:"message"`
	Ticket  TicketSummary  `json:"ticket"`
	Contact *PersonRef     `json:"contact,omitempty"`
}

// TicketPayloadBuilder produces ticket event payloads. Builders are pure:
// the same inputs always yield the same payload value, so a retried job that
// re-runs a build observes identical bytes.
type TicketPayloadBuilder struct {
	// DashboardURL is the public base URL for ticket permalinks, without a
	// trailing slash.
	DashboardURL string
}

// ForCreated builds the ticket.created payload.
func (b *TicketPayloadBuilder) ForCreated(t *types.Ticket) *TicketPayload {
	return &TicketPayload{Ticket: b.summary(t)}
}

// ForStatusChanged builds the ticket.status_changed payload.
func (b *TicketPayloadBuilder) ForStatusChanged(t *types.Ticket, oldStatus, newStatus *types.TicketStatus) *TicketPayload {
	return &TicketPayload{
		Ticket: b.summary(t),
		Changes: map[string]FieldChange{
			"status": {From: statusRef(oldStatus), To: statusRef(newStatus)},
		},
	}
}

// ForPriorityChanged builds the ticket.priority_changed payload.
func (b *TicketPayloadBuilder) ForPriorityChanged(t *types.Ticket, oldPriority, newPriority *types.TicketPriority) *TicketPayload {
	return &TicketPayload{
		Ticket: b.summary(t),
		Changes: map[string]FieldChange{
			"priority": {From: priorityRef(oldPriority), To: priorityRef(newPriority)},
		},
	}
}

// ForAssigned builds the ticket.assigned payload. Both sides of the change
// may be null: initial assignment has no From, unassignment has no To.
func (b *TicketPayloadBuilder) ForAssigned(t *types.Ticket, oldAssignee, newAssignee *types.User) *TicketPayload {
	return &TicketPayload{
		Ticket: b.summary(t),
		Changes: map[string]FieldChange{
			"assignee": {From: userRef(oldAssignee), To: userRef(newAssignee)},
		},
	}
}

// ForSLAChanged builds the ticket.sla_changed payload.
func (b *TicketPayloadBuilder) ForSLAChanged(t *types.Ticket, oldSLA, newSLA *types.SLA) *TicketPayload {
	return &TicketPayload{
		Ticket: b.summary(t),
		Changes: map[string]FieldChange{
			"sla": {From: slaRef(oldSLA), To: slaRef(newSLA)},
		},
	}
}

func (b *TicketPayloadBuilder) summary(t *types.Ticket) TicketSummary {
	s := TicketSummary{
		ID:       t.ID,
		Number:   t.Number,
		Subject:  t.Subject,
		URL:      t.PermalinkURL(b.DashboardURL),
		Status:   statusRef(t.Status),
		Priority: priorityRef(t.Priority),
		Assignee: userRef(t.Assignee),
		SLA:      slaRef(t.SLA),
	}
	if t.Department != nil {
		s.Department = &EntityRef{ID: t.Department.ID, Name: t.Department.Name}
	}
	return s
}

// MessagePayloadBuilder produces message event payloads. It reuses the ticket
// builder for the embedded ticket sub-object.
type MessagePayloadBuilder struct {
	Tickets *TicketPayloadBuilder
}

// ForCreated builds the message.created payload. The owning ticket must be
// hydrated on the message.
func (b *MessagePayloadBuilder) ForCreated(t *types.Ticket, m *types.Message) *MessagePayload {
	return &MessagePayload{
		Message: messageSummary(m),
		Ticket:  b.Tickets.summary(t),
	}
}

// ForReplyReceived builds the reply.received payload, adding the contact
// projection alongside the generic author field.
func (b *MessagePayloadBuilder) ForReplyReceived(t *types.Ticket, m *types.Message) *MessagePayload {
	p := b.ForCreated(t, m)
	if m.Contact != nil {
		p.Contact = &PersonRef{ID: m.Contact.ID, Name: m.Contact.Name, Email: m.Contact.Email}
	}
	return p
}

func messageSummary(m *types.Message) MessageSummary {
	return MessageSummary{
		ID:             m.ID,
		Type:           string(m.Type),
		IsFromContact:  m.IsFromContact,
		Author:         messageAuthor(m),
		HasAttachments: m.AttachmentsCount > 0,
		CreatedAt:      m.CreatedAt,
	}
}

func messageAuthor(m *types.Message) *Author {
	if m.IsFromContact {
		if m.Contact == nil {
			return nil
		}
		return &Author{Kind: "contact", ID: m.Contact.ID, Name: m.Contact.Name, Email: m.Contact.Email}
	}
	if m.User == nil {
		return nil
	}
	return &Author{Kind: "user", ID: m.User.ID, Name: m.User.Name, Email: m.User.Email}
}

func statusRef(s *types.TicketStatus) *EntityRef {
	if s == nil {
		return nil
	}
	return &EntityRef{ID: s.ID, Name: s.Name}
}

func priorityRef(p *types.TicketPriority) *EntityRef {
	if p == nil {
		return nil
	}
	return &EntityRef{ID: p.ID, Name: p.Name}
}

func slaRef(s *types.SLA) *EntityRef {
	if s == nil {
		return nil
	}
	return &EntityRef{ID: s.ID, Name: s.Name}
}

func userRef(u *types.User) *PersonRef {
	if u == nil {
		return nil
	}
	return &PersonRef{ID: u.ID, Name: u.Name, Email: u.Email}
}
