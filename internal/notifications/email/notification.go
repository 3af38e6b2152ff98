// Package email routes ticket-scoped notification sends through the
// organization's connected mailbox: precondition checks, HTML rendering with
// organization branding, RFC 2822/Outlook threading headers, provider
// hand-off, and delivery-log bookkeeping.
package email

import (
	"ticketdesk/internal/types"
)

// Notification is the payload for one email notification send. It references
// the ticket either directly or through an attached message; Send treats a
// payload that resolves no ticket as an expected no-op, not an error.
type Notification struct {
	// Ticket is the direct ticket reference. Takes precedence over Message.
	Ticket *types.Ticket

	// Message is an attached message whose hydrated Ticket supplies the
	// context when Ticket is nil.
	Message *types.Message

	// Recipient is the notified agent. Address resolution order:
	// RecipientOverride, then the recipient's routing address, then its bare
	// email field.
	Recipient         *types.User
	RecipientOverride string

	// Subject before the ticket-number prefix is applied.
	Subject string

	// View data merged into the template alongside branding and ticket
	// context.
	Heading     string
	Paragraphs  []string
	ActionLabel string

	CC []string

	// ShouldThread nests the email under the customer's original thread.
	// Defaults to false: agent-facing system notifications must not be forced
	// into the customer's conversation.
	ShouldThread bool
}

// ResolveTicket implements types.TicketContextResolver. Returns nil when the
// payload carries no usable ticket context.
func (n *Notification) ResolveTicket() *types.Ticket {
	if n.Ticket != nil {
		return n.Ticket
	}
	if n.Message != nil {
		return n.Message.Ticket
	}
	return nil
}

// RecipientAddress resolves the destination address: explicit override first,
// then the recipient's routing address (which itself falls back to the bare
// email field). Empty means no address could be determined.
func (n *Notification) RecipientAddress() string {
	if n.RecipientOverride != "" {
		return n.RecipientOverride
	}
	if n.Recipient != nil {
		return n.Recipient.RoutingAddress()
	}
	return ""
}

// RecipientName returns the display name for the destination, if known.
func (n *Notification) RecipientName() string {
	if n.Recipient != nil {
		return n.Recipient.Name
	}
	return ""
}

var _ types.TicketContextResolver = (*Notification)(nil)
