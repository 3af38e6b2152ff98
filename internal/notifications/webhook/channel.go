package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ticketdesk/internal/config"
	"ticketdesk/internal/security"
	"ticketdesk/internal/types"
)

// SQSMaxDelaySeconds is the maximum delay SQS supports (15 minutes).
// Retry-After values exceeding this trigger the parking pattern.
const SQSMaxDelaySeconds = 900

// ErrWebhookLongDelay is returned when a 429 Retry-After exceeds the SQS
// maximum delay. The worker must respond by parking the delivery: recording
// it as retrying and ACKing the queue message rather than re-queuing with a
// delay the queue cannot honor.
var ErrWebhookLongDelay = errors.New("webhook: retry-after exceeds SQS maximum delay, requires parking")

// maxResponseBodyRead limits how much of a response body is read for error
// messages and soft-failure detection.
const maxResponseBodyRead = 4096

// eventHeader and deliveryHeader identify the event kind and job on every
// outbound request, signed or not.
const (
	eventHeader    = "X-Ticketdesk-Event"
	deliveryHeader = "X-Ticketdesk-Delivery"
)

// Channel executes webhook HTTP deliveries. It formats the job body for the
// subscription's configured format, signs standard-format bodies, POSTs with
// SSRF protection, and classifies the response into a DeliveryResult.
type Channel struct {
	registry   *FormatRegistry
	httpClient *http.Client
	config     *config.WebhookConfig
	logger     types.Logger
	clock      types.Clock
}

// NewChannel creates a Channel with an SSRF-safe HTTP client. This is the
// factory used by the worker entrypoint.
func NewChannel(cfg *config.WebhookConfig, logger types.Logger) (*Channel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("webhook channel: config is nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("webhook channel: logger is nil")
	}

	httpClient, err := security.NewSafeHTTPClient(cfg.DefaultTimeout, cfg.MaxRedirects)
	if err != nil {
		return nil, fmt.Errorf("webhook channel: failed to create safe HTTP client: %w", err)
	}

	return &Channel{
		registry:   NewFormatRegistry(),
		httpClient: httpClient,
		config:     cfg,
		logger:     logger,
		clock:      types.RealClock{},
	}, nil
}

// NewChannelWithClient creates a Channel with a caller-supplied HTTP client.
// This constructor exists for testing against httptest servers.
func NewChannelWithClient(cfg *config.WebhookConfig, httpClient *http.Client, logger types.Logger) *Channel {
	return &Channel{
		registry:   NewFormatRegistry(),
		httpClient: httpClient,
		config:     cfg,
		logger:     logger,
		clock:      types.RealClock{},
	}
}

// SetClock overrides the clock for testing.
func (c *Channel) SetClock(clk types.Clock) {
	c.clock = clk
}

// Deliver formats, signs, and transmits one webhook job to its subscription.
//
// Response handling:
//   - 2xx: validate format-specific response body, return success
//   - 429: parse Retry-After, return Retryable with RetryAfter duration;
//     if the delay exceeds the SQS maximum, return ErrWebhookLongDelay
//   - 410 Gone: return Terminal (the subscription must be disabled)
//   - other 4xx: permanent failure, no retry
//   - 5xx: transient failure, retryable
func (c *Channel) Deliver(ctx context.Context, sub *types.Webhook, job *types.WebhookJob) (*types.DeliveryResult, error) {
	formatter := c.registry.Get(sub.Format)

	body, err := formatter.Format(job)
	if err != nil {
		return nil, fmt.Errorf("webhook deliver: format: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webhook deliver: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set(eventHeader, string(job.EventKind))
	req.Header.Set(deliveryHeader, job.JobID)

	if formatter.Signed() && sub.Secret.Unmask() != "" {
		req.Header.Set(SignatureHeader, SignPayload(body, sub.Secret))
	}

	c.logger.Info("delivering webhook",
		"webhook_id", sub.ID,
		"event_kind", string(job.EventKind),
		"payload_size", len(body),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isSSRFError(err) {
			c.logger.Error("webhook SSRF blocked",
				"webhook_id", sub.ID,
				"error", err.Error(),
			)
			return &types.DeliveryResult{
				Status:        types.DeliveryStatusFailed,
				FailureReason: fmt.Sprintf("ssrf_blocked: %v", err),
				Retryable:     false,
			}, nil
		}

		// Timeouts and other transient network errors are retryable.
		c.logger.Warn("webhook network error",
			"webhook_id", sub.ID,
			"error", err.Error(),
		)
		return &types.DeliveryResult{
			Status:        types.DeliveryStatusFailed,
			FailureReason: fmt.Sprintf("network_error: %v", err),
			Retryable:     true,
		}, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return c.handle429(resp, sub)

	case resp.StatusCode == http.StatusGone:
		return c.handle410(sub)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return c.handle2xx(resp, respBody, sub, formatter)

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return c.handle4xx(resp, respBody, sub)

	default: // 5xx and anything unexpected
		return c.handle5xx(resp, respBody, sub)
	}
}

// handle429 parses the Retry-After header and returns retryable with delay.
// Delays beyond the SQS maximum return ErrWebhookLongDelay so the worker
// parks the delivery instead of re-queuing.
func (c *Channel) handle429(resp *http.Response, sub *types.Webhook) (*types.DeliveryResult, error) {
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), c.clock)

	c.logger.Warn("webhook rate limited (429)",
		"webhook_id", sub.ID,
		"retry_after_seconds", retryAfter.Seconds(),
	)

	if retryAfter.Seconds() > float64(SQSMaxDelaySeconds) {
		return &types.DeliveryResult{
			Status:        types.DeliveryStatusRetrying,
			FailureReason: fmt.Sprintf("rate_limited_429: retry-after %s exceeds queue delay limit", retryAfter),
			Retryable:     true,
			RetryAfter:    &retryAfter,
		}, ErrWebhookLongDelay
	}

	return &types.DeliveryResult{
		Status:        types.DeliveryStatusRetrying,
		FailureReason: fmt.Sprintf("rate_limited_429: retry after %s", retryAfter),
		Retryable:     true,
		RetryAfter:    &retryAfter,
	}, nil
}

// handle410 returns a Terminal result. The worker must disable the
// subscription permanently.
func (c *Channel) handle410(sub *types.Webhook) (*types.DeliveryResult, error) {
	c.logger.Warn("webhook endpoint gone (410)",
		"webhook_id", sub.ID,
	)

	return &types.DeliveryResult{
		Status:        types.DeliveryStatusFailed,
		FailureReason: "endpoint_gone_410",
		Retryable:     false,
		Terminal:      true,
	}, nil
}

// handle2xx runs the format-specific soft-failure check before declaring
// success (e.g., Slack HTTP 200 with "ok": false).
func (c *Channel) handle2xx(resp *http.Response, body []byte, sub *types.Webhook, formatter Formatter) (*types.DeliveryResult, error) {
	if err := formatter.ValidateResponse(resp.StatusCode, body); err != nil {
		c.logger.Warn("webhook soft failure on 2xx",
			"webhook_id", sub.ID,
			"status", resp.StatusCode,
			"error", err.Error(),
		)
		return &types.DeliveryResult{
			Status:        types.DeliveryStatusFailed,
			FailureReason: fmt.Sprintf("soft_failure: %v", err),
			Retryable:     true,
		}, nil
	}

	c.logger.Info("webhook delivered",
		"webhook_id", sub.ID,
		"status", resp.StatusCode,
	)

	return &types.DeliveryResult{
		Status: types.DeliveryStatusSuccess,
	}, nil
}

// handle4xx returns a permanent failure for client errors.
func (c *Channel) handle4xx(resp *http.Response, body []byte, sub *types.Webhook) (*types.DeliveryResult, error) {
	reason := fmt.Sprintf("client_error_%d: %s", resp.StatusCode, truncateBody(body))

	c.logger.Warn("webhook client error",
		"webhook_id", sub.ID,
		"status", resp.StatusCode,
		"body", truncateBody(body),
	)

	return &types.DeliveryResult{
		Status:        types.DeliveryStatusFailed,
		FailureReason: reason,
		Retryable:     false,
	}, nil
}

// handle5xx returns a retryable failure for server errors.
func (c *Channel) handle5xx(resp *http.Response, body []byte, sub *types.Webhook) (*types.DeliveryResult, error) {
	reason := fmt.Sprintf("server_error_%d: %s", resp.StatusCode, truncateBody(body))

	c.logger.Warn("webhook server error",
		"webhook_id", sub.ID,
		"status", resp.StatusCode,
		"body", truncateBody(body),
	)

	return &types.DeliveryResult{
		Status:        types.DeliveryStatusFailed,
		FailureReason: reason,
		Retryable:     true,
	}, nil
}

// ShouldRetry inspects an error to determine if it is transient. SSRF blocks
// are never retried. ErrWebhookLongDelay requires parking but is
// conceptually retryable.
func (c *Channel) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if isSSRFError(err) {
		return false
	}

	if errors.Is(err, ErrWebhookLongDelay) {
		return true
	}

	return true
}

// parseRetryAfter extracts the retry delay from a Retry-After header value.
// It supports both seconds (integer) and HTTP-date formats. Returns a default
// of 60 seconds if the header is missing or unparseable.
func parseRetryAfter(header string, clock types.Clock) time.Duration {
	if header == "" {
		return 60 * time.Second
	}

	if seconds, err := strconv.ParseInt(header, 10, 64); err == nil {
		if seconds <= 0 {
			return 1 * time.Second
		}
		return time.Duration(seconds) * time.Second
	}

	if t, err := time.Parse(time.RFC1123, header); err == nil {
		delay := t.Sub(clock.Now())
		if delay <= 0 {
			return 1 * time.Second
		}
		return delay
	}

	if t, err := time.Parse(time.RFC1123Z, header); err == nil {
		delay := t.Sub(clock.Now())
		if delay <= 0 {
			return 1 * time.Second
		}
		return delay
	}

	return 60 * time.Second
}

// isSSRFError reports whether the error originated from SSRF protection.
func isSSRFError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, security.ErrSSRFBlocked) ||
		errors.Is(err, security.ErrSSRFDNSTimeout) ||
		errors.Is(err, security.ErrSSRFTooManyRedirects) ||
		errors.Is(err, security.ErrSSRFDNSFailed)
}
