package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/types"
)

type stubSubscriptions struct {
	webhooks []*types.Webhook
	err      error

	gotOrgID string
	gotKind  types.EventKind
}

func (s *stubSubscriptions) ListActiveByEvent(_ context.Context, orgID string, kind types.EventKind) ([]*types.Webhook, error) {
	s.gotOrgID = orgID
	s.gotKind = kind
	return s.webhooks, s.err
}

// capturingPublisher is mutex-guarded: the dispatcher enqueues concurrently.
type capturingPublisher struct {
	mu   sync.Mutex
	jobs []*types.WebhookJob
	errs map[string]error
}

func (p *capturingPublisher) PublishWebhook(_ context.Context, job *types.WebhookJob, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	if p.errs != nil {
		return p.errs[job.WebhookID]
	}
	return nil
}

func (p *capturingPublisher) webhookIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.jobs))
	for _, j := range p.jobs {
		ids = append(ids, j.WebhookID)
	}
	return ids
}

type dispatcherClock struct{ now time.Time }

func (c dispatcherClock) Now() time.Time { return c.now }

type noopLogger struct{}

func (noopLogger) Info(string, ...any)      {}
func (noopLogger) Error(string, ...any)     {}
func (noopLogger) Warn(string, ...any)      {}
func (noopLogger) With(...any) types.Logger { return noopLogger{} }

func newTestDispatcher(subs *stubSubscriptions, pub *capturingPublisher) *Dispatcher {
	return NewDispatcher(subs, pub, "https://app.example.com",
		dispatcherClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}, noopLogger{})
}

func TestDispatcherTicketCreated_OneJobPerSubscriber(t *testing.T) {
	subs := &stubSubscriptions{webhooks: []*types.Webhook{
		{ID: "wh_1", Format: types.FormatStandard},
		{ID: "wh_2", Format: types.FormatSlack},
	}}
	pub := &capturingPublisher{}
	d := newTestDispatcher(subs, pub)

	d.TicketCreated(context.Background(), payloadTicket())

	assert.Equal(t, "org_1", subs.gotOrgID)
	assert.Equal(t, types.EventTicketCreated, subs.gotKind)

	require.Len(t, pub.jobs, 2)
	assert.ElementsMatch(t, []string{"wh_1", "wh_2"}, pub.webhookIDs())

	// Every subscriber receives the identical payload bytes.
	assert.Equal(t, pub.jobs[0].Payload, pub.jobs[1].Payload)
	assert.Equal(t, types.EventTicketCreated, pub.jobs[0].EventKind)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), pub.jobs[0].OccurredAt)
}

func TestDispatcherTicketStatusChanged_PayloadShape(t *testing.T) {
	subs := &stubSubscriptions{webhooks: []*types.Webhook{{ID: "wh_1"}}}
	pub := &capturingPublisher{}
	d := newTestDispatcher(subs, pub)

	d.TicketStatusChanged(context.Background(), payloadTicket(),
		&types.TicketStatus{ID: "st_open", Name: "Open"},
		&types.TicketStatus{ID: "st_closed", Name: "Closed"},
	)

	require.Len(t, pub.jobs, 1)

	var p TicketPayload
	require.NoError(t, json.Unmarshal(pub.jobs[0].Payload, &p))
	assert.Equal(t, "TKT-42", p.Ticket.Number)
	require.Contains(t, p.Changes, "status")
}

func TestDispatcherReplyReceived_IncludesContact(t *testing.T) {
	subs := &stubSubscriptions{webhooks: []*types.Webhook{{ID: "wh_1"}}}
	pub := &capturingPublisher{}
	d := newTestDispatcher(subs, pub)

	contactID := "con_1"
	m := &types.Message{
		ID:            "msg_1",
		Type:          types.MessageReply,
		IsFromContact: true,
		ContactID:     &contactID,
		Contact:       &types.Contact{ID: "con_1", Name: "Alice", Email: "alice@customer.com"},
	}

	d.ReplyReceived(context.Background(), payloadTicket(), m)

	require.Len(t, pub.jobs, 1)
	assert.Equal(t, types.EventReplyReceived, pub.jobs[0].EventKind)

	var p MessagePayload
	require.NoError(t, json.Unmarshal(pub.jobs[0].Payload, &p))
	require.NotNil(t, p.Contact)
	assert.Equal(t, "Alice", p.Contact.Name)
}

func TestDispatcher_NoSubscribersNoJobs(t *testing.T) {
	subs := &stubSubscriptions{}
	pub := &capturingPublisher{}
	d := newTestDispatcher(subs, pub)

	d.TicketCreated(context.Background(), payloadTicket())

	assert.Empty(t, pub.jobs)
}

func TestDispatcher_LookupFailureSwallowed(t *testing.T) {
	subs := &stubSubscriptions{err: errors.New("db down")}
	pub := &capturingPublisher{}
	d := newTestDispatcher(subs, pub)

	// Must not panic or propagate; dispatch is fire-and-forget.
	d.TicketAssigned(context.Background(), payloadTicket(), nil,
		&types.User{ID: "usr_2", Name: "Sam", Email: "sam@example.com"})

	assert.Empty(t, pub.jobs)
}

func TestDispatcher_PublishFailureContinuesFanOut(t *testing.T) {
	subs := &stubSubscriptions{webhooks: []*types.Webhook{
		{ID: "wh_1"},
		{ID: "wh_2"},
		{ID: "wh_3"},
	}}
	pub := &capturingPublisher{errs: map[string]error{"wh_2": errors.New("queue unavailable")}}
	d := newTestDispatcher(subs, pub)

	d.TicketCreated(context.Background(), payloadTicket())

	// All three publishes were attempted despite wh_2 failing.
	require.Len(t, pub.jobs, 3)
}

func TestDispatcher_TraceIDFromContext(t *testing.T) {
	subs := &stubSubscriptions{webhooks: []*types.Webhook{{ID: "wh_1"}}}
	pub := &capturingPublisher{}
	d := newTestDispatcher(subs, pub)

	ctx := types.WithRequestID(context.Background(), "req_abc")
	d.MessageCreated(ctx, payloadTicket(), &types.Message{ID: "msg_1", Type: types.MessageNote})

	require.Len(t, pub.jobs, 1)
	assert.Equal(t, "req_abc", pub.jobs[0].TraceID)
}
