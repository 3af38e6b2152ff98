package types

import (
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// TicketContextResolver is implemented by every notification payload that can
// name the ticket it concerns, either directly or through an attached message.
// Returning nil means the payload carries no ticket context; email dispatch
// treats that as an expected no-op, not an error.
type TicketContextResolver interface {
	ResolveTicket() *Ticket
}
