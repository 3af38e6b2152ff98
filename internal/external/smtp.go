package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ticketdesk/internal/types"
)

// SMTPRelayConfig holds the settings for creating an SMTPRelayClient.
type SMTPRelayConfig struct {
	RelayURL string
	Logger   types.Logger
}

// SMTPRelayClient implements EmailProvider against the internal SMTP relay's
// HTTP API. The relay is send-only: mailbox reads, folder operations, and
// OAuth flows are not supported and report provider_misconfigured so callers
// surface the misuse instead of silently skipping.
type SMTPRelayClient struct {
	base     *BaseClient
	relayURL string
	logger   types.Logger
}

// NewSMTPRelayClient creates an SMTPRelayClient. A missing relay URL fails
// construction immediately.
func NewSMTPRelayClient(httpClient *http.Client, cfg SMTPRelayConfig) (*SMTPRelayClient, error) {
	if cfg.RelayURL == "" {
		return nil, types.NewAppError(types.ErrCodeProviderMisconfigured,
			"smtp provider requires a relay url", nil)
	}

	return &SMTPRelayClient{
		base:     NewBaseClient(httpClient, "smtp-relay", DefaultRetryPolicy()),
		relayURL: strings.TrimSuffix(cfg.RelayURL, "/"),
		logger:   cfg.Logger,
	}, nil
}

type smtpSendRequest struct {
	From     string            `json:"from"`
	FromName string            `json:"from_name,omitempty"`
	To       string            `json:"to"`
	ToName   string            `json:"to_name,omitempty"`
	CC       []string          `json:"cc,omitempty"`
	ReplyTo  string            `json:"reply_to,omitempty"`
	Subject  string            `json:"subject"`
	HTML     string            `json:"html"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// SendNotification posts the rendered email to the relay's send endpoint.
func (s *SMTPRelayClient) SendNotification(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	return s.send(ctx, ch, out)
}

// SendMessage posts an agent reply through the relay.
func (s *SMTPRelayClient) SendMessage(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	return s.send(ctx, ch, out)
}

func (s *SMTPRelayClient) send(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	payload := smtpSendRequest{
		From:     ch.EmailAddress,
		FromName: ch.DisplayName,
		To:       out.ToEmail,
		ToName:   out.ToName,
		CC:       out.CC,
		ReplyTo:  out.ReplyTo,
		Subject:  out.Subject,
		HTML:     out.HTML,
		Headers:  smtpHeaders(out),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal smtp relay payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.relayURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create smtp relay request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		excerpt := readErrorExcerpt(resp.Body)
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("smtp relay returned %d: %s", resp.StatusCode, excerpt), nil)
	}

	var sent struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			"failed to decode smtp relay response", err)
	}
	return sent.MessageID, nil
}

// smtpHeaders flattens the threading header set into relay pass-through
// headers.
func smtpHeaders(out types.OutboundEmail) map[string]string {
	headers := map[string]string{}
	if out.TicketNumber != "" {
		headers["X-Ticketdesk-Ticket"] = out.TicketNumber
	}
	th := out.Threading
	if th.IsZero() {
		return headers
	}
	headers["Message-ID"] = th.MessageID
	headers["In-Reply-To"] = th.InReplyTo
	headers["References"] = th.References
	headers["Thread-Topic"] = th.ThreadTopic
	headers["Thread-Index"] = th.ThreadIndex
	return headers
}

// FetchMessages is unsupported: the relay has no mailbox to read.
func (s *SMTPRelayClient) FetchMessages(ctx context.Context, ch *types.EmailChannel, since time.Time) ([]*FetchedMessage, error) {
	return nil, s.unsupported("fetch messages")
}

// ArchiveMessage is unsupported on the send-only relay.
func (s *SMTPRelayClient) ArchiveMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID string) (string, error) {
	return "", s.unsupported("archive message")
}

// MoveMessage is unsupported on the send-only relay.
func (s *SMTPRelayClient) MoveMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID, folderID string) (string, error) {
	return "", s.unsupported("move message")
}

// DeleteMessage is unsupported on the send-only relay.
func (s *SMTPRelayClient) DeleteMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID string) error {
	return s.unsupported("delete message")
}

// GetAuthorizationURL is unsupported: relay channels have no OAuth flow.
func (s *SMTPRelayClient) GetAuthorizationURL(state, redirectURI string) (string, error) {
	return "", s.unsupported("oauth authorization")
}

// HandleCallback is unsupported: relay channels have no OAuth flow.
func (s *SMTPRelayClient) HandleCallback(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	return nil, s.unsupported("oauth callback")
}

// RefreshToken is unsupported: relay channels carry no tokens.
func (s *SMTPRelayClient) RefreshToken(ctx context.Context, ch *types.EmailChannel) (*TokenSet, error) {
	return nil, s.unsupported("token refresh")
}

// TestConnection probes the relay's health endpoint.
func (s *SMTPRelayClient) TestConnection(ctx context.Context, ch *types.EmailChannel) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.relayURL+"/healthz", nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create smtp relay health request", err)
	}

	resp, err := s.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("smtp relay health check returned %d", resp.StatusCode), nil)
	}
	return nil
}

func (s *SMTPRelayClient) unsupported(op string) error {
	return types.NewAppError(types.ErrCodeProviderMisconfigured,
		fmt.Sprintf("smtp relay does not support %s", op), nil)
}

var _ EmailProvider = (*SMTPRelayClient)(nil)
