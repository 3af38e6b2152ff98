package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/notifications/core"
	"ticketdesk/internal/notifications/webhook"
	"ticketdesk/internal/types"
)

type testLogger struct{}

func (testLogger) Info(string, ...any)        {}
func (testLogger) Error(string, ...any)       {}
func (testLogger) Warn(string, ...any)        {}
func (l testLogger) With(...any) types.Logger { return l }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubStore struct {
	sub          *types.Webhook
	getErr       error
	disableCalls int
	disabledID   string
	disabledWhy  string
}

func (s *stubStore) GetByID(context.Context, string) (*types.Webhook, error) {
	return s.sub, s.getErr
}

func (s *stubStore) Disable(_ context.Context, id, reason string) error {
	s.disableCalls++
	s.disabledID = id
	s.disabledWhy = reason
	return nil
}

type stubDeliverer struct {
	result *types.DeliveryResult
	err    error
	calls  int
}

func (d *stubDeliverer) Deliver(context.Context, *types.Webhook, *types.WebhookJob) (*types.DeliveryResult, error) {
	d.calls++
	return d.result, d.err
}

type stubPublisher struct {
	calls    int
	gotJob   *types.WebhookJob
	gotDelay time.Duration
	err      error
}

func (p *stubPublisher) PublishWebhook(_ context.Context, job *types.WebhookJob, delay time.Duration) error {
	p.calls++
	p.gotJob = job
	p.gotDelay = delay
	return p.err
}

type capturingAppender struct {
	entries []*types.DeliveryLogEntry
}

func (a *capturingAppender) Append(_ context.Context, e *types.DeliveryLogEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

type fixture struct {
	handler   *Handler
	store     *stubStore
	deliverer *stubDeliverer
	publisher *stubPublisher
	appender  *capturingAppender
}

func newFixture() *fixture {
	store := &stubStore{sub: activeSubscription()}
	deliverer := &stubDeliverer{result: &types.DeliveryResult{Status: types.DeliveryStatusSuccess}}
	publisher := &stubPublisher{}
	appender := &capturingAppender{}
	clock := fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	return &fixture{
		handler: &Handler{
			webhooks:    store,
			channel:     deliverer,
			publisher:   publisher,
			recorder:    core.NewDeliveryRecorder(appender, core.NopMetrics{}, clock, testLogger{}),
			metrics:     core.NopMetrics{},
			retryPolicy: core.WebhookRetryPolicy,
			enabled:     true,
			logger:      testLogger{},
			clock:       clock,
		},
		store:     store,
		deliverer: deliverer,
		publisher: publisher,
		appender:  appender,
	}
}

func activeSubscription() *types.Webhook {
	return &types.Webhook{
		ID:             "whk_1",
		OrganizationID: "org_1",
		URL:            "https://example.com/hooks",
		IsActive:       true,
		Format:         types.FormatStandard,
		Secret:         types.SecretString("s3cret"),
	}
}

func sqsRecord(t *testing.T, job types.WebhookJob) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return events.SQSMessage{MessageId: "sqs-msg-1", Body: string(body)}
}

func testJob() types.WebhookJob {
	return types.WebhookJob{
		JobID:          "job_1",
		WebhookID:      "whk_1",
		OrganizationID: "org_1",
		EventKind:      types.EventTicketCreated,
		Payload:        json.RawMessage(`{"event":"ticket.created"}`),
		RetryCount:     1,
		TraceID:        "req_abc",
	}
}

func TestHandle_SuccessRecordsDelivery(t *testing.T) {
	f := newFixture()

	resp, err := f.handler.Handle(context.Background(),
		events.SQSEvent{Records: []events.SQSMessage{sqsRecord(t, testJob())}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 1, f.deliverer.calls)
	assert.Equal(t, 0, f.publisher.calls)

	require.Len(t, f.appender.entries, 1)
	entry := f.appender.entries[0]
	assert.Equal(t, types.DeliveryStatusSuccess, entry.Status)
	assert.Equal(t, "whk_1", entry.ChannelID)
	assert.Equal(t, "https://example.com/hooks", entry.Recipient)
	assert.Equal(t, string(types.EventTicketCreated), entry.Subject)
}

func TestHandle_RetryableFailureRepublishesWithBackoff(t *testing.T) {
	f := newFixture()
	f.deliverer.result = &types.DeliveryResult{
		Status:        types.DeliveryStatusFailed,
		FailureReason: "server_error_503",
		Retryable:     true,
	}

	resp, err := f.handler.Handle(context.Background(),
		events.SQSEvent{Records: []events.SQSMessage{sqsRecord(t, testJob())}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	require.Equal(t, 1, f.publisher.calls)
	assert.Equal(t, core.CalculateNextRetry(core.WebhookRetryPolicy, 1), f.publisher.gotDelay)

	require.Len(t, f.appender.entries, 1)
	assert.Equal(t, types.DeliveryStatusFailed, f.appender.entries[0].Status)
	assert.Equal(t, "server_error_503", f.appender.entries[0].Error)
}

func TestHandle_RetryAfterOverridesBackoff(t *testing.T) {
	f := newFixture()
	after := 5 * time.Second
	f.deliverer.result = &types.DeliveryResult{
		Status:        types.DeliveryStatusFailed,
		FailureReason: "rate_limited_429",
		Retryable:     true,
		RetryAfter:    &after,
	}

	_, err := f.handler.Handle(context.Background(),
		events.SQSEvent{Records: []events.SQSMessage{sqsRecord(t, testJob())}})

	require.NoError(t, err)
	require.Equal(t, 1, f.publisher.calls)
	assert.Equal(t, 5*time.Second, f.publisher.gotDelay)
}

func TestHandle_LongDelayClampedToQueueMaximum(t *testing.T) {
	f := newFixture()
	after := time.Hour
	f.deliverer.result = &types.DeliveryResult{
		Status:        types.DeliveryStatusFailed,
		FailureReason: "rate_limited_429",
		Retryable:     true,
		RetryAfter:    &after,
	}
	f.deliverer.err = webhook.ErrWebhookLongDelay

	resp, err := f.handler.Handle(context.Background(),
		events.SQSEvent{Records: []events.SQSMessage{sqsRecord(t, testJob())}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	require.Equal(t, 1, f.publisher.calls)
	assert.Equal(t, webhook.SQSMaxDelaySeconds*time.Second, f.publisher.gotDelay)
}

func TestHandle_TerminalResponseDisablesSubscription(t *testing.T) {
	f := newFixture()
	f.deliverer.result = &types.DeliveryResult{
		Status:        types.DeliveryStatusFailed,
		FailureReason: "endpoint_gone_410",
		Terminal:      true,
	}

	_, err := f.handler.Handle(context.Background(),
		events.SQSEvent{Records: []events.SQSMessage{sqsRecord(t, testJob())}})

	require.NoError(t, err)
	assert.Equal(t, 1, f.store.disableCalls)
	assert.Equal(t, "whk_1", f.store.disabledID)
	assert.Equal(t, "endpoint_gone_410", f.store.disabledWhy)
	assert.Equal(t, 0, f.publisher.calls)

	require.Len(t, f.appender.entries, 1)
	assert.Equal(t, types.DeliveryStatusFailed, f.appender.entries[0].Status)
}

func TestHandle_ExhaustedRetriesNotRepublished(t *testing.T) {
	f := newFixture()
	f.deliverer.result = &types.DeliveryResult{
		Status:        types.DeliveryStatusFailed,
		FailureReason: "server_error_503",
		Retryable:     true,
	}
	job := testJob()
	job.RetryCount = core.WebhookRetryPolicy.MaxAttempts

	resp, err := f.handler.Handle(context.Background(),
		events.SQSEvent{Records: []events.SQSMessage{sqsRecord(t, job)}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 0, f.publisher.calls)
	require.Len(t, f.appender.entries, 1)
}

func TestHandle_InactiveSubscriptionSkipped(t *testing.T) {
	f := newFixture()
	f.store.sub.IsActive = false
	f.store.sub.DisabledReason = "endpoint_gone_410"

	resp, err := f.handler.Handle(context.Background(),
		events.SQSEvent{Records: []events.SQSMessage{sqsRecord(t, testJob())}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 0, f.deliverer.calls)

	require.Len(t, f.appender.entries, 1)
	assert.Equal(t, types.DeliveryStatusSkipped, f.appender.entries[0].Status)
}

func TestHandle_MalformedBodyAcked(t *testing.T) {
	f := newFixture()

	resp, err := f.handler.Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{{MessageId: "sqs-msg-1", Body: "{not json"}},
	})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 0, f.deliverer.calls)
	assert.Empty(t, f.appender.entries)
}

func TestHandle_DeletedSubscriptionDropped(t *testing.T) {
	f := newFixture()
	f.store.sub = nil
	f.store.getErr = types.NewAppError(types.ErrCodeNotFoundWebhook, "webhook whk_1 not found", nil)

	resp, err := f.handler.Handle(context.Background(),
		events.SQSEvent{Records: []events.SQSMessage{sqsRecord(t, testJob())}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 0, f.deliverer.calls)
}

func TestHandle_StoreFailureReportsBatchItem(t *testing.T) {
	f := newFixture()
	f.store.sub = nil
	f.store.getErr = types.NewAppError(types.ErrCodeInternalDB, "query failed", nil)

	resp, err := f.handler.Handle(context.Background(),
		events.SQSEvent{Records: []events.SQSMessage{sqsRecord(t, testJob())}})

	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "sqs-msg-1", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestHandle_FeatureFlagDisabledAcksBatch(t *testing.T) {
	f := newFixture()
	f.handler.enabled = false

	resp, err := f.handler.Handle(context.Background(),
		events.SQSEvent{Records: []events.SQSMessage{sqsRecord(t, testJob())}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 0, f.deliverer.calls)
}
