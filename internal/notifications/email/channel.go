package email

import (
	"context"
	"errors"

	"ticketdesk/internal/notifications/core"
	"ticketdesk/internal/types"
)

// OrganizationStore loads the tenant for branding and settings.
type OrganizationStore interface {
	GetOrganization(ctx context.Context, id string) (*types.Organization, error)
}

// ChannelStore resolves the sending mailbox for a ticket.
type ChannelStore interface {
	ResolveForTicket(ctx context.Context, orgID string, boundChannelID string) (*types.EmailChannel, error)
}

// Sender is the provider-side send operation. Implementations live in the
// external package, keyed by the channel's provider kind.
type Sender interface {
	SendNotification(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error)
}

// SenderSource resolves the Sender for a channel's provider kind. A missing
// or misconfigured provider returns an error, which Send records as a failed
// delivery.
type SenderSource interface {
	ForChannel(ch *types.EmailChannel) (Sender, error)
}

// Service routes a ticket-scoped notification through the organization's
// connected mailbox. No error escapes Send: every failure is caught, logged,
// and recorded in the delivery log, because a broken email integration must
// never break the triggering business operation.
type Service struct {
	orgs     OrganizationStore
	channels ChannelStore
	senders  SenderSource
	renderer *Renderer
	recorder *core.DeliveryRecorder
	logger   types.Logger
}

// NewService wires the email notification channel.
func NewService(
	orgs OrganizationStore,
	channels ChannelStore,
	senders SenderSource,
	renderer *Renderer,
	recorder *core.DeliveryRecorder,
	logger types.Logger,
) *Service {
	return &Service{
		orgs:     orgs,
		channels: channels,
		senders:  senders,
		renderer: renderer,
		recorder: recorder,
		logger:   logger,
	}
}

// Send delivers one notification email. Preconditions are checked in strict
// order with no partial side effects:
//
//  1. the payload resolves a concrete ticket, else warn + no-op
//  2. the organization has system emails enabled, else skip silently
//  3. an active email channel resolves for the ticket, else skip with warning
//  4. a recipient address can be determined, else skip with warning
//
// On a send attempt, exactly one delivery-log entry is written: Success with
// the resolved recipient and subject, or Failed with the provider's error,
// still logged when the channel was resolved before the failure.
func (s *Service) Send(ctx context.Context, n *Notification) *types.DeliveryResult {
	ticket := n.ResolveTicket()
	if ticket == nil {
		s.logger.Warn("email notification carries no ticket context")
		return &types.DeliveryResult{
			Status:        types.DeliveryStatusSkipped,
			FailureReason: "missing_ticket_context",
		}
	}

	org, err := s.orgs.GetOrganization(ctx, ticket.OrganizationID)
	if err != nil {
		s.logger.Error("email notification org lookup failed",
			"ticket_id", ticket.ID,
			"error", err.Error(),
		)
		return &types.DeliveryResult{
			Status:        types.DeliveryStatusFailed,
			FailureReason: "organization_lookup_failed",
			Retryable:     true,
		}
	}

	if !org.SystemEmailsEnabled {
		return &types.DeliveryResult{
			Status:        types.DeliveryStatusSkipped,
			FailureReason: "system_emails_disabled",
		}
	}

	boundChannelID := ""
	if ticket.ChannelID != nil {
		boundChannelID = *ticket.ChannelID
	}
	channel, err := s.channels.ResolveForTicket(ctx, ticket.OrganizationID, boundChannelID)
	if err != nil {
		s.logger.Error("email channel lookup failed",
			"ticket_id", ticket.ID,
			"error", err.Error(),
		)
		return &types.DeliveryResult{
			Status:        types.DeliveryStatusFailed,
			FailureReason: "channel_lookup_failed",
			Retryable:     true,
		}
	}
	if channel == nil {
		s.logger.Warn("no active email channel for ticket",
			"ticket_id", ticket.ID,
			"organization_id", ticket.OrganizationID,
		)
		return &types.DeliveryResult{
			Status:        types.DeliveryStatusSkipped,
			FailureReason: "no_active_channel",
		}
	}

	address := n.RecipientAddress()
	if address == "" {
		s.logger.Warn("no recipient address for email notification",
			"ticket_id", ticket.ID,
		)
		return &types.DeliveryResult{
			Status:        types.DeliveryStatusSkipped,
			FailureReason: "no_recipient_address",
		}
	}

	subject, html, err := s.renderer.Render(org, ticket, n)
	if err != nil {
		return s.fail(ctx, channel, ticket, subject, address, "render_failed: "+err.Error(), false)
	}

	sender, err := s.senders.ForChannel(channel)
	if err != nil {
		return s.fail(ctx, channel, ticket, subject, address, "provider_unavailable: "+err.Error(), false)
	}

	out := types.OutboundEmail{
		ToEmail:      address,
		ToName:       n.RecipientName(),
		Subject:      subject,
		HTML:         html,
		CC:           n.CC,
		ReplyTo:      channel.EmailAddress,
		TicketNumber: ticket.Number,
		Threading:    BuildThreadHeaders(ticket, n.ShouldThread),
	}

	providerMessageID, err := sender.SendNotification(ctx, channel, out)
	if err != nil {
		s.logger.Error("email send failed",
			"ticket_id", ticket.ID,
			"dest", RedactEmail(address),
			"error", err.Error(),
		)
		return s.fail(ctx, channel, ticket, subject, address, err.Error(), retryable(err))
	}

	s.logger.Info("email delivered",
		"ticket_id", ticket.ID,
		"dest", RedactEmail(address),
		"provider_message_id", providerMessageID,
	)
	s.recorder.RecordSuccess(ctx, types.ChannelEmail, types.DeliveryLogEntry{
		ChannelID: channel.ID,
		Subject:   subject,
		Recipient: address,
		TicketID:  ticket.ID,
	})

	return &types.DeliveryResult{
		ProviderMessageID: providerMessageID,
		Status:            types.DeliveryStatusSuccess,
	}
}

// retryable classifies a provider error. Unknown errors default to retryable;
// only errors the provider explicitly marks permanent stay down.
func retryable(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable()
	}
	return true
}

// fail records the failed attempt in the delivery log with whatever subject
// and recipient are known, and returns the failure result.
func (s *Service) fail(ctx context.Context, channel *types.EmailChannel, ticket *types.Ticket, subject, recipient, reason string, retryable bool) *types.DeliveryResult {
	s.recorder.RecordFailure(ctx, types.ChannelEmail, types.DeliveryLogEntry{
		ChannelID: channel.ID,
		Subject:   subject,
		Recipient: recipient,
		TicketID:  ticket.ID,
	}, reason)

	return &types.DeliveryResult{
		Status:        types.DeliveryStatusFailed,
		FailureReason: reason,
		Retryable:     retryable,
	}
}
