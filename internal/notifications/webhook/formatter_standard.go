package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"ticketdesk/internal/types"
)

// StandardFormatter produces the signed JSON envelope: the event payload
// wrapped with a top-level event key and timestamp. This is the only format
// whose deliveries carry the signature header.
type StandardFormatter struct{}

// standardEnvelope is the outbound wire shape for standard deliveries.
type standardEnvelope struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Format wraps the job's payload in the standard envelope. The payload bytes
// pass through untouched, so two formats of the same job are byte-identical.
func (f *StandardFormatter) Format(job *types.WebhookJob) ([]byte, error) {
	if job == nil {
		return nil, fmt.Errorf("standard formatter: job is nil")
	}
	return json.Marshal(standardEnvelope{
		Event:     string(job.EventKind),
		Timestamp: job.OccurredAt,
		Data:      job.Payload,
	})
}

// Signed reports that standard deliveries carry the signature header.
func (f *StandardFormatter) Signed() bool { return true }

// ValidateResponse accepts any 2xx response body as-is.
func (f *StandardFormatter) ValidateResponse(statusCode int, _ []byte) error {
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("standard: unexpected status %d", statusCode)
	}
	return nil
}
