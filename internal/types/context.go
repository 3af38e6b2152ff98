package types

import (
	"context"
)

// OperationContext identifies the tenant and actor on whose behalf a
// transition or dispatch runs. It is threaded explicitly into every observer
// and dispatcher entry point so the queue-execution path (no ambient request)
// behaves identically to the synchronous path.
type OperationContext struct {
	OrganizationID string
	ActorUserID    string
	// System marks operations triggered by background machinery rather than
	// an authenticated agent (inbound email polling, scheduled jobs).
	System bool
}

// SystemOperation returns an OperationContext for background machinery acting
// within the given organization.
func SystemOperation(orgID string) OperationContext {
	return OperationContext{OrganizationID: orgID, System: true}
}

// Context keys
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	loggerKey    contextKey = "logger"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithLogger stores a Logger in the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the Logger from the context. The returned
// logger is expected to have been pre-enriched with request-scoped fields
// (request id, actor id) by middleware. Returns nil if none was set.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return nil
}
