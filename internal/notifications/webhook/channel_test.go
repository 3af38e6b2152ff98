package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/config"
	"ticketdesk/internal/types"
)

func testChannel(t *testing.T, handler http.HandlerFunc) (*Channel, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.WebhookConfig{
		UserAgent:      "Ticketdesk-Webhook/1.0",
		DefaultTimeout: 5 * time.Second,
		MaxRedirects:   3,
	}
	ch := NewChannelWithClient(cfg, server.Client(), noopLogger{})
	return ch, server
}

func testJob() *types.WebhookJob {
	payload, _ := json.Marshal(testBuilder().ForCreated(payloadTicket()))
	return &types.WebhookJob{
		JobID:          "job_1",
		WebhookID:      "wh_1",
		OrganizationID: "org_1",
		EventKind:      types.EventTicketCreated,
		Payload:        payload,
		OccurredAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testSub(url string, format types.WebhookFormat, secret string) *types.Webhook {
	return &types.Webhook{
		ID:       "wh_1",
		URL:      url,
		IsActive: true,
		Format:   format,
		Secret:   types.SecretString(secret),
	}
}

func TestChannelDeliver_Success_SignedStandard(t *testing.T) {
	var gotSig, gotEvent, gotUA string
	var gotBody []byte

	ch, server := testChannel(t, func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotEvent = r.Header.Get("X-Ticketdesk-Event")
		gotUA = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	result, err := ch.Deliver(context.Background(), testSub(server.URL, types.FormatStandard, "whsec_1"), testJob())
	require.NoError(t, err)

	assert.Equal(t, types.DeliveryStatusSuccess, result.Status)
	assert.Equal(t, "ticket.created", gotEvent)
	assert.Equal(t, "Ticketdesk-Webhook/1.0", gotUA)

	// Standard envelope wraps the payload with event and timestamp.
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	assert.Equal(t, "ticket.created", envelope["event"])
	assert.Contains(t, envelope, "timestamp")
	assert.Contains(t, envelope, "data")

	// Signature verifies over the exact bytes on the wire.
	mac := hmac.New(sha256.New, []byte("whsec_1"))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSig)
}

func TestChannelDeliver_SlackUnsigned(t *testing.T) {
	var gotSig string

	ch, server := testChannel(t, func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		_, _ = w.Write([]byte("ok"))
	})

	result, err := ch.Deliver(context.Background(), testSub(server.URL, types.FormatSlack, "whsec_1"), testJob())
	require.NoError(t, err)

	assert.Equal(t, types.DeliveryStatusSuccess, result.Status)
	assert.Empty(t, gotSig, "slack deliveries must not carry the signature header")
}

func TestChannelDeliver_SlackSoftFailure(t *testing.T) {
	ch, server := testChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": false, "error": "channel_not_found"}`))
	})

	result, err := ch.Deliver(context.Background(), testSub(server.URL, types.FormatSlack, ""), testJob())
	require.NoError(t, err)

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.True(t, result.Retryable)
	assert.Contains(t, result.FailureReason, "soft_failure")
	assert.Contains(t, result.FailureReason, "channel_not_found")
}

func TestChannelDeliver_429ShortDelay(t *testing.T) {
	ch, server := testChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	result, err := ch.Deliver(context.Background(), testSub(server.URL, types.FormatStandard, ""), testJob())
	require.NoError(t, err)

	assert.Equal(t, types.DeliveryStatusRetrying, result.Status)
	assert.True(t, result.Retryable)
	require.NotNil(t, result.RetryAfter)
	assert.Equal(t, 30*time.Second, *result.RetryAfter)
}

func TestChannelDeliver_429LongDelayRequiresParking(t *testing.T) {
	ch, server := testChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	result, err := ch.Deliver(context.Background(), testSub(server.URL, types.FormatStandard, ""), testJob())
	require.ErrorIs(t, err, ErrWebhookLongDelay)

	require.NotNil(t, result)
	assert.Equal(t, types.DeliveryStatusRetrying, result.Status)
	require.NotNil(t, result.RetryAfter)
	assert.Equal(t, 3600*time.Second, *result.RetryAfter)
	assert.True(t, ch.ShouldRetry(err))
}

func TestChannelDeliver_429MissingRetryAfterDefaults(t *testing.T) {
	ch, server := testChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	result, err := ch.Deliver(context.Background(), testSub(server.URL, types.FormatStandard, ""), testJob())
	require.NoError(t, err)

	require.NotNil(t, result.RetryAfter)
	assert.Equal(t, 60*time.Second, *result.RetryAfter)
}

func TestChannelDeliver_410Terminal(t *testing.T) {
	ch, server := testChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})

	result, err := ch.Deliver(context.Background(), testSub(server.URL, types.FormatStandard, ""), testJob())
	require.NoError(t, err)

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.False(t, result.Retryable)
	assert.True(t, result.Terminal, "410 must mark the subscription for disabling")
	assert.Equal(t, "endpoint_gone_410", result.FailureReason)
}

func TestChannelDeliver_4xxPermanent(t *testing.T) {
	ch, server := testChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such hook"))
	})

	result, err := ch.Deliver(context.Background(), testSub(server.URL, types.FormatStandard, ""), testJob())
	require.NoError(t, err)

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.False(t, result.Retryable)
	assert.False(t, result.Terminal)
	assert.Contains(t, result.FailureReason, "client_error_404")
}

func TestChannelDeliver_5xxRetryable(t *testing.T) {
	ch, server := testChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	result, err := ch.Deliver(context.Background(), testSub(server.URL, types.FormatStandard, ""), testJob())
	require.NoError(t, err)

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.True(t, result.Retryable)
	assert.Contains(t, result.FailureReason, "server_error_503")
}

func TestChannelDeliver_NetworkErrorRetryable(t *testing.T) {
	ch, server := testChannel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	// Close the server so the connection is refused.
	url := server.URL
	server.Close()

	result, err := ch.Deliver(context.Background(), testSub(url, types.FormatStandard, ""), testJob())
	require.NoError(t, err)

	assert.Equal(t, types.DeliveryStatusFailed, result.Status)
	assert.True(t, result.Retryable)
	assert.Contains(t, result.FailureReason, "network_error")
}

func TestChannelDeliver_EmptySecretSkipsSignature(t *testing.T) {
	var sigPresent bool

	ch, server := testChannel(t, func(w http.ResponseWriter, r *http.Request) {
		_, sigPresent = r.Header[SignatureHeader]
		w.WriteHeader(http.StatusOK)
	})

	_, err := ch.Deliver(context.Background(), testSub(server.URL, types.FormatStandard, ""), testJob())
	require.NoError(t, err)
	assert.False(t, sigPresent)
}

func TestParseRetryAfter(t *testing.T) {
	clock := dispatcherClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"empty defaults to 60s", "", 60 * time.Second},
		{"integer seconds", "120", 120 * time.Second},
		{"zero clamps to 1s", "0", 1 * time.Second},
		{"negative clamps to 1s", "-5", 1 * time.Second},
		{"http date", clock.now.Add(90 * time.Second).UTC().Format(time.RFC1123), 90 * time.Second},
		{"past http date clamps to 1s", clock.now.Add(-time.Hour).UTC().Format(time.RFC1123), 1 * time.Second},
		{"garbage defaults to 60s", "soon", 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.header, clock))
		})
	}
}
