package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/notifications/core"
	"ticketdesk/internal/types"
)

type stubOrgs struct {
	org *types.Organization
	err error
}

func (s *stubOrgs) GetOrganization(ctx context.Context, id string) (*types.Organization, error) {
	return s.org, s.err
}

type stubChannels struct {
	ch  *types.EmailChannel
	err error

	gotOrgID string
	gotBound string
}

func (s *stubChannels) ResolveForTicket(ctx context.Context, orgID string, boundChannelID string) (*types.EmailChannel, error) {
	s.gotOrgID = orgID
	s.gotBound = boundChannelID
	return s.ch, s.err
}

type stubSender struct {
	id  string
	err error

	gotChannel *types.EmailChannel
	gotEmail   types.OutboundEmail
	calls      int
}

func (s *stubSender) SendNotification(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	s.calls++
	s.gotChannel = ch
	s.gotEmail = out
	return s.id, s.err
}

type stubSenders struct {
	sender Sender
	err    error
}

func (s *stubSenders) ForChannel(ch *types.EmailChannel) (Sender, error) {
	return s.sender, s.err
}

type capturingAppender struct {
	entries []types.DeliveryLogEntry
}

func (c *capturingAppender) Append(ctx context.Context, entry *types.DeliveryLogEntry) error {
	c.entries = append(c.entries, *entry)
	return nil
}

type frozenClock struct{ at time.Time }

func (c frozenClock) Now() time.Time { return c.at }

type testLogger struct{}

func (testLogger) Info(msg string, args ...any)    {}
func (testLogger) Error(msg string, args ...any)   {}
func (testLogger) Warn(msg string, args ...any)    {}
func (l testLogger) With(args ...any) types.Logger { return l }

type serviceFixture struct {
	svc      *Service
	orgs     *stubOrgs
	channels *stubChannels
	sender   *stubSender
	log      *capturingAppender
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	renderer, err := NewRenderer("https://app.example.com")
	require.NoError(t, err)

	orgs := &stubOrgs{org: &types.Organization{
		ID:                  "org_1",
		Name:                "Acme Support",
		SystemEmailsEnabled: true,
	}}
	channels := &stubChannels{ch: &types.EmailChannel{
		ID:           "ch_1",
		Provider:     types.ProviderMicrosoft365,
		EmailAddress: "support@acme.com",
		IsActive:     true,
	}}
	sender := &stubSender{id: "prov_msg_1"}
	log := &capturingAppender{}

	recorder := core.NewDeliveryRecorder(log, core.NopMetrics{}, frozenClock{at: time.Now().UTC()}, testLogger{})

	return &serviceFixture{
		svc:      NewService(orgs, channels, &stubSenders{sender: sender}, renderer, recorder, testLogger{}),
		orgs:     orgs,
		channels: channels,
		sender:   sender,
		log:      log,
	}
}

func sendTicket() *types.Ticket {
	return &types.Ticket{
		ID:             "tkt_1",
		OrganizationID: "org_1",
		Number:         "TKT-42",
		Subject:        "Printer on fire",
	}
}

func sendNotification() *Notification {
	return &Notification{
		Ticket:     sendTicket(),
		Recipient:  &types.User{ID: "usr_1", Name: "Dana", Email: "dana@acme.com"},
		Subject:    "New ticket: Printer on fire",
		Paragraphs: []string{"A new ticket was created."},
	}
}

func TestServiceSend_Success(t *testing.T) {
	f := newServiceFixture(t)

	result := f.svc.Send(context.Background(), sendNotification())

	require.NotNil(t, result)
	assert.Equal(t, types.DeliveryStatusSuccess, result.Status)
	assert.Equal(t, "prov_msg_1", result.ProviderMessageID)

	require.Equal(t, 1, f.sender.calls)
	assert.Equal(t, "dana@acme.com", f.sender.gotEmail.ToEmail)
	assert.Equal(t, "Dana", f.sender.gotEmail.ToName)
	assert.Equal(t, "[TKT-42] New ticket: Printer on fire", f.sender.gotEmail.Subject)
	assert.Equal(t, "support@acme.com", f.sender.gotEmail.ReplyTo)
	assert.Equal(t, "TKT-42", f.sender.gotEmail.TicketNumber)
	assert.Contains(t, f.sender.gotEmail.HTML, "A new ticket was created.")
	assert.True(t, f.sender.gotEmail.Threading.IsZero(),
		"unthreaded notifications carry no threading headers")

	require.Len(t, f.log.entries, 1)
	entry := f.log.entries[0]
	assert.Equal(t, types.DeliveryStatusSuccess, entry.Status)
	assert.Equal(t, "ch_1", entry.ChannelID)
	assert.Equal(t, "[TKT-42] New ticket: Printer on fire", entry.Subject)
	assert.Equal(t, "dana@acme.com", entry.Recipient)
	assert.Equal(t, "tkt_1", entry.TicketID)
}

func TestServiceSend_MissingTicketContext(t *testing.T) {
	f := newServiceFixture(t)

	result := f.svc.Send(context.Background(), &Notification{
		Recipient: &types.User{Email: "dana@acme.com"},
		Subject:   "orphan",
	})

	assert.Equal(t, types.DeliveryStatusSkipped, result.Status)
	assert.Equal(t, "missing_ticket_context", result.FailureReason)
	assert.Zero(t, f.sender.calls)
	assert.Empty(t, f.log.entries, "precondition skips write no delivery-log entries")
}

func TestServiceSend_OrgLookupFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.orgs.org = nil
	f.orgs.err = errors.New("db down")

	result := f.svc.Send(context.Background(), sendNotification())

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.Equal(t, "organization_lookup_failed", result.FailureReason)
	assert.True(t, result.Retryable)
	assert.Empty(t, f.log.entries)
}

func TestServiceSend_SystemEmailsDisabled(t *testing.T) {
	f := newServiceFixture(t)
	f.orgs.org.SystemEmailsEnabled = false

	result := f.svc.Send(context.Background(), sendNotification())

	assert.Equal(t, types.DeliveryStatusSkipped, result.Status)
	assert.Equal(t, "system_emails_disabled", result.FailureReason)
	assert.Zero(t, f.sender.calls)
	assert.Empty(t, f.log.entries)
}

func TestServiceSend_NoActiveChannel(t *testing.T) {
	f := newServiceFixture(t)
	f.channels.ch = nil

	result := f.svc.Send(context.Background(), sendNotification())

	assert.Equal(t, types.DeliveryStatusSkipped, result.Status)
	assert.Equal(t, "no_active_channel", result.FailureReason)
	assert.Empty(t, f.log.entries)
}

func TestServiceSend_ChannelLookupFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.channels.ch = nil
	f.channels.err = errors.New("db down")

	result := f.svc.Send(context.Background(), sendNotification())

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.Equal(t, "channel_lookup_failed", result.FailureReason)
	assert.True(t, result.Retryable)
	assert.Empty(t, f.log.entries)
}

func TestServiceSend_BoundChannelForwarded(t *testing.T) {
	f := newServiceFixture(t)

	n := sendNotification()
	bound := "ch_bound"
	n.Ticket.ChannelID = &bound

	f.svc.Send(context.Background(), n)

	assert.Equal(t, "org_1", f.channels.gotOrgID)
	assert.Equal(t, "ch_bound", f.channels.gotBound)
}

func TestServiceSend_NoRecipientAddress(t *testing.T) {
	f := newServiceFixture(t)

	n := sendNotification()
	n.Recipient = &types.User{ID: "usr_1", Name: "Ghost"}

	result := f.svc.Send(context.Background(), n)

	assert.Equal(t, types.DeliveryStatusSkipped, result.Status)
	assert.Equal(t, "no_recipient_address", result.FailureReason)
	assert.Zero(t, f.sender.calls)
	assert.Empty(t, f.log.entries)
}

func TestServiceSend_ThreadingPassthrough(t *testing.T) {
	f := newServiceFixture(t)

	n := sendNotification()
	n.Ticket.EmailOriginalMessageID = "<orig-1@customer.com>"
	n.Ticket.EmailThreadID = "thread-1"
	n.ShouldThread = true

	result := f.svc.Send(context.Background(), n)

	assert.Equal(t, types.DeliveryStatusSuccess, result.Status)
	assert.Equal(t, "<orig-1@customer.com>", f.sender.gotEmail.Threading.InReplyTo)
	assert.NotEmpty(t, f.sender.gotEmail.Threading.MessageID)
	assert.NotEmpty(t, f.sender.gotEmail.Threading.ThreadIndex)
}

func TestServiceSend_ProviderFailureRecorded(t *testing.T) {
	f := newServiceFixture(t)
	f.sender.id = ""
	f.sender.err = types.NewAppError(types.ErrCodeUpstreamEmailProvider, "graph 503", nil)

	result := f.svc.Send(context.Background(), sendNotification())

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.True(t, result.Retryable)

	require.Len(t, f.log.entries, 1)
	entry := f.log.entries[0]
	assert.Equal(t, types.DeliveryStatusFailed, entry.Status)
	assert.Equal(t, "ch_1", entry.ChannelID)
	assert.Equal(t, "dana@acme.com", entry.Recipient)
	assert.NotEmpty(t, entry.Error)
}

func TestServiceSend_BlockedRecipientNotRetryable(t *testing.T) {
	f := newServiceFixture(t)
	f.sender.id = ""
	f.sender.err = types.NewAppError(types.ErrCodeEmailBlocked, "recipient suppressed", nil)

	result := f.svc.Send(context.Background(), sendNotification())

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.False(t, result.Retryable)
	require.Len(t, f.log.entries, 1)
}

func TestServiceSend_UnknownProviderErrorDefaultsRetryable(t *testing.T) {
	f := newServiceFixture(t)
	f.sender.id = ""
	f.sender.err = errors.New("connection reset")

	result := f.svc.Send(context.Background(), sendNotification())

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.True(t, result.Retryable)
}

func TestServiceSend_ProviderUnavailableRecorded(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.senders = &stubSenders{err: errors.New("unsupported provider kind")}

	result := f.svc.Send(context.Background(), sendNotification())

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.False(t, result.Retryable)
	assert.Contains(t, result.FailureReason, "provider_unavailable")

	require.Len(t, f.log.entries, 1)
	assert.Equal(t, types.DeliveryStatusFailed, f.log.entries[0].Status)
}
