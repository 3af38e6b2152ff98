package webhook

import (
	"ticketdesk/internal/types"
)

// Formatter transforms a queued webhook job into the wire body for one
// outbound format, and validates the subscriber's HTTP response for
// format-specific soft failures.
type Formatter interface {
	// Format produces the request body sent to the subscriber.
	Format(job *types.WebhookJob) ([]byte, error)

	// Signed reports whether deliveries in this format carry the payload
	// signature header. Only the standard format is signed; chat formats
	// post to platform-issued URLs that do not verify signatures.
	Signed() bool

	// ValidateResponse inspects a 2xx response for soft failures (e.g.,
	// Slack returning HTTP 200 with an error body).
	ValidateResponse(statusCode int, body []byte) error
}

// FormatRegistry maps a webhook's configured format to its Formatter. The
// mapping is static: formats are registered at construction and never change
// at runtime, so adding a format means adding a formatter here and nothing
// in dispatch changes.
type FormatRegistry struct {
	formatters map[types.WebhookFormat]Formatter
}

// NewFormatRegistry creates a FormatRegistry with all built-in formatters.
func NewFormatRegistry() *FormatRegistry {
	return &FormatRegistry{
		formatters: map[types.WebhookFormat]Formatter{
			types.FormatStandard: &StandardFormatter{},
			types.FormatSlack:    &SlackFormatter{},
			types.FormatDiscord:  &DiscordFormatter{},
		},
	}
}

// Get returns the Formatter for the given format, falling back to the
// standard formatter for unknown values.
func (r *FormatRegistry) Get(f types.WebhookFormat) Formatter {
	if formatter, ok := r.formatters[f]; ok {
		return formatter
	}
	return r.formatters[types.FormatStandard]
}
