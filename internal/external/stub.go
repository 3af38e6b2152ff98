package external

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"ticketdesk/internal/types"
)

// StubProvider implements EmailProvider by logging calls and returning
// predictable, test-safe values. It backs every provider kind when the
// process runs in local/test mode so nothing needs real mailbox credentials.
type StubProvider struct {
	logger types.Logger
}

// NewStubProvider creates a StubProvider.
func NewStubProvider(logger types.Logger) *StubProvider {
	return &StubProvider{logger: logger}
}

func (s *StubProvider) SendNotification(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	s.logger.Info("stub: SendNotification called",
		"channel_id", ch.ID,
		"to", out.ToEmail,
		"subject", out.Subject,
	)
	return "stub-msg-" + uuid.NewString(), nil
}

func (s *StubProvider) SendMessage(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	s.logger.Info("stub: SendMessage called",
		"channel_id", ch.ID,
		"to", out.ToEmail,
	)
	return "stub-msg-" + uuid.NewString(), nil
}

func (s *StubProvider) FetchMessages(ctx context.Context, ch *types.EmailChannel, since time.Time) ([]*FetchedMessage, error) {
	s.logger.Info("stub: FetchMessages called",
		"channel_id", ch.ID,
		"since", since,
	)
	return []*FetchedMessage{}, nil
}

func (s *StubProvider) GetAuthorizationURL(state, redirectURI string) (string, error) {
	return fmt.Sprintf("https://auth.stub.local/authorize?state=%s&redirect_uri=%s",
		url.QueryEscape(state), url.QueryEscape(redirectURI)), nil
}

func (s *StubProvider) HandleCallback(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	s.logger.Info("stub: HandleCallback called", "code", code)
	return &TokenSet{
		AccessToken:  types.SecretString("stub-access-" + code),
		RefreshToken: types.SecretString("stub-refresh-" + code),
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}, nil
}

func (s *StubProvider) RefreshToken(ctx context.Context, ch *types.EmailChannel) (*TokenSet, error) {
	s.logger.Info("stub: RefreshToken called", "channel_id", ch.ID)
	return &TokenSet{
		AccessToken:  types.SecretString("stub-access-" + uuid.NewString()),
		RefreshToken: ch.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}, nil
}

func (s *StubProvider) TestConnection(ctx context.Context, ch *types.EmailChannel) error {
	s.logger.Info("stub: TestConnection called", "channel_id", ch.ID)
	return nil
}

func (s *StubProvider) ArchiveMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID string) (string, error) {
	s.logger.Info("stub: ArchiveMessage called",
		"channel_id", ch.ID,
		"provider_message_id", providerMessageID,
	)
	return providerMessageID, nil
}

func (s *StubProvider) MoveMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID, folderID string) (string, error) {
	s.logger.Info("stub: MoveMessage called",
		"channel_id", ch.ID,
		"provider_message_id", providerMessageID,
		"folder_id", folderID,
	)
	return providerMessageID, nil
}

func (s *StubProvider) DeleteMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID string) error {
	s.logger.Info("stub: DeleteMessage called",
		"channel_id", ch.ID,
		"provider_message_id", providerMessageID,
	)
	return nil
}

var _ EmailProvider = (*StubProvider)(nil)
