package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateNextRetry_WebhookPolicy(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 1 * time.Second},
		{attempt: 1, want: 5 * time.Second},
		{attempt: 2, want: 25 * time.Second},
		{attempt: 3, want: 30 * time.Second}, // capped at MaxDelay
		{attempt: 10, want: 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateNextRetry(WebhookRetryPolicy, tt.attempt),
			"attempt %d", tt.attempt)
	}
}

func TestCalculateNextRetry_EmailPolicy(t *testing.T) {
	assert.Equal(t, 1*time.Second, CalculateNextRetry(EmailRetryPolicy, 0))
	assert.Equal(t, 2*time.Second, CalculateNextRetry(EmailRetryPolicy, 1))
	assert.Equal(t, 4*time.Second, CalculateNextRetry(EmailRetryPolicy, 2))
	assert.Equal(t, 8*time.Second, CalculateNextRetry(EmailRetryPolicy, 3))
	assert.Equal(t, 10*time.Second, CalculateNextRetry(EmailRetryPolicy, 4))
}

func TestCalculateNextRetry_NegativeAttempt(t *testing.T) {
	assert.Equal(t, 1*time.Second, CalculateNextRetry(WebhookRetryPolicy, -3))
}

func TestCalculateNextRetry_OverflowGuard(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:   100,
		BaseDelay:     time.Hour,
		MaxDelay:      2 * time.Hour,
		BackoffFactor: 1000,
	}
	assert.Equal(t, 2*time.Hour, CalculateNextRetry(policy, 50))
}
