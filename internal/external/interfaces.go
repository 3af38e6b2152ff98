// Package external is the anti-corruption layer between Ticketdesk and the
// mailbox provider APIs (Microsoft Graph, Gmail, an SMTP relay). All outbound
// HTTP goes through the BaseClient, which enforces circuit breaking, retries
// with backoff, trace propagation, and AppError mapping, so provider clients
// stay narrow JSON translations.
package external

import (
	"context"
	"time"

	"ticketdesk/internal/types"
)

// EmailProvider is the full per-provider mailbox contract. The channel
// argument carries the tenant's address and OAuth material; process-level
// settings (API base URLs, OAuth app credentials) live in the client.
type EmailProvider interface {
	// SendNotification transmits a rendered system notification. The
	// threading header set in out is applied verbatim when non-zero. Returns
	// the provider's message id for the delivery log.
	SendNotification(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error)

	// SendMessage transmits a real agent reply into the customer's thread.
	// Same wire mechanics as SendNotification; kept separate because replies
	// are always threaded and never carry the notification chrome.
	SendMessage(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error)

	// FetchMessages lists inbound messages received after since, newest
	// last. Used by the mailbox poller to turn customer email into tickets.
	FetchMessages(ctx context.Context, ch *types.EmailChannel, since time.Time) ([]*FetchedMessage, error)

	// GetAuthorizationURL builds the provider consent URL for connecting a
	// mailbox. state round-trips through the provider for CSRF protection.
	GetAuthorizationURL(state, redirectURI string) (string, error)

	// HandleCallback exchanges the authorization code from the consent
	// redirect for a channel token set.
	HandleCallback(ctx context.Context, code, redirectURI string) (*TokenSet, error)

	// RefreshToken exchanges the channel's refresh token for a fresh token
	// set. The caller persists the result on the channel.
	RefreshToken(ctx context.Context, ch *types.EmailChannel) (*TokenSet, error)

	// TestConnection verifies the channel's credentials are usable, without
	// sending anything.
	TestConnection(ctx context.Context, ch *types.EmailChannel) error

	// ArchiveMessage archives an inbound message. Some providers reissue ids
	// on move, so the (possibly new) provider message id is returned and
	// must replace the stored one.
	ArchiveMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID string) (string, error)

	// MoveMessage moves a message to the named folder. Same new-id contract
	// as ArchiveMessage.
	MoveMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID, folderID string) (string, error)

	// DeleteMessage removes a message from the mailbox.
	DeleteMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID string) error
}

// TokenSet is the normalized OAuth token result handed back to the channel
// store after a consent callback or refresh.
type TokenSet struct {
	AccessToken  types.SecretString
	RefreshToken types.SecretString
	ExpiresAt    time.Time
}

// FetchedMessage is the provider-neutral projection of one inbound email.
// Only the fields ticket creation needs; raw provider payloads never leave
// this package.
type FetchedMessage struct {
	ProviderMessageID string
	ThreadID          string

	// RFC 2822 identity used to thread follow-up notifications.
	InternetMessageID string

	FromEmail string
	FromName  string
	To        []string
	CC        []string

	Subject  string
	HTMLBody string
	TextBody string

	ReceivedAt time.Time
}
