package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and workers use these instead of hardcoded
// strings so HTTP mapping and retry classification stay consistent.
const (
	// Validation (400)
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail   ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidWebhook ErrorCode = "validation_invalid_webhook_url"
	ErrCodeValidationInvalidEvent   ErrorCode = "validation_invalid_event_kind"

	// Security (403)
	ErrCodeSignatureInvalid   ErrorCode = "security_signature_invalid"
	ErrCodeVerifyTokenInvalid ErrorCode = "security_verify_token_invalid"

	// Not Found (404)
	ErrCodeNotFoundTicket      ErrorCode = "not_found_ticket"
	ErrCodeNotFoundOrg         ErrorCode = "not_found_organization"
	ErrCodeNotFoundWebhook     ErrorCode = "not_found_webhook"
	ErrCodeNotFoundChannel     ErrorCode = "not_found_email_channel"
	ErrCodeNotFoundFolder      ErrorCode = "not_found_folder"
	ErrCodeNotFoundUser        ErrorCode = "not_found_user"
	ErrCodeNotFoundContact     ErrorCode = "not_found_contact"
	ErrCodeNotFoundMessage     ErrorCode = "not_found_message"
	ErrCodeNotFoundIntegration ErrorCode = "not_found_integration"

	// Conflict (409)
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Delivery / upstream (502)
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"

	// Provider configuration (failed permanently at construction)
	ErrCodeProviderMisconfigured ErrorCode = "provider_misconfigured"
	ErrCodeEmailBlocked          ErrorCode = "email_blocked"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "security_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodeEmailBlocked):
		return http.StatusForbidden
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. All domain and worker
// errors are expressed as AppError to enable consistent formatting, HTTP
// status mapping, and retry classification at the job boundary.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// Retryable reports whether a delivery job failing with this error should be
// re-enqueued. Provider misconfiguration fails identically on retry; upstream
// availability and rate limiting are transient.
func (e *AppError) Retryable() bool {
	switch e.Code {
	case ErrCodeUpstreamUnavailable, ErrCodeUpstreamRateLimited, ErrCodeUpstreamEmailProvider:
		return true
	default:
		return false
	}
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
