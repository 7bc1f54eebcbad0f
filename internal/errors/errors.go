package errors

import (
	"errors"
	"fmt"
)

// Domain-specific error types
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateEntry indicates a unique constraint violation
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnectionNotFound indicates the mailbox connection was not found
	ErrConnectionNotFound = errors.New("mailbox connection not found")

	// ErrConnectionInactive indicates the mailbox connection is deactivated
	ErrConnectionInactive = errors.New("mailbox connection is not active")

	// ErrWebhookNotFound indicates the webhook was not found
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrMessageNotFound indicates the message was not found
	ErrMessageNotFound = errors.New("message not found")

	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal server error")

	// Provider-specific errors
	// ErrAuth indicates provider credentials are invalid and could not be refreshed
	ErrAuth = errors.New("provider authentication failed")

	// ErrProvider indicates a generic upstream provider failure
	ErrProvider = errors.New("provider request failed")

	// ErrInvalidCursor indicates the provider no longer recognizes the sync cursor
	ErrInvalidCursor = errors.New("sync cursor is invalid or expired")

	// ErrDelivery indicates a webhook endpoint delivery failure
	ErrDelivery = errors.New("webhook delivery failed")
)

// Error codes for API responses
const (
	CodeNotFound           = "NOT_FOUND"
	CodeDuplicateEntry     = "DUPLICATE_ENTRY"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeConnectionInactive = "CONNECTION_INACTIVE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeAuthFailed         = "PROVIDER_AUTH_FAILED"
	CodeProviderError      = "PROVIDER_ERROR"
	CodeInvalidCursor      = "INVALID_CURSOR"
	CodeDeliveryFailed     = "DELIVERY_FAILED"
)

// AppError represents an application error with context
type AppError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// ProviderError carries context about a failed provider API call. It wraps
// one of the provider sentinels (ErrAuth, ErrInvalidCursor, ErrProvider) so
// callers can branch with errors.Is while keeping the operation, mailbox and
// upstream status for logging.
type ProviderError struct {
	Err        error  `json:"-"`
	Op         string `json:"op"`
	Mailbox    string `json:"mailbox,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Mailbox != "" {
		return fmt.Sprintf("%s: %s (mailbox %s)", e.Op, e.Message, e.Mailbox)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying sentinel
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewAuthError creates a ProviderError for credential failures
func NewAuthError(op, mailbox, message string) *ProviderError {
	return &ProviderError{Err: ErrAuth, Op: op, Mailbox: mailbox, Message: message}
}

// NewProviderError creates a ProviderError for generic upstream failures
func NewProviderError(op, mailbox string, statusCode int, message string) *ProviderError {
	return &ProviderError{Err: ErrProvider, Op: op, Mailbox: mailbox, StatusCode: statusCode, Message: message}
}

// NewInvalidCursorError creates a ProviderError for stale/unknown cursors
func NewInvalidCursorError(op, mailbox, cursor string) *ProviderError {
	return &ProviderError{
		Err:     ErrInvalidCursor,
		Op:      op,
		Mailbox: mailbox,
		Message: fmt.Sprintf("provider rejected cursor %q", cursor),
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConnectionNotFound) ||
		errors.Is(err, ErrWebhookNotFound) ||
		errors.Is(err, ErrMessageNotFound)
}

// IsDuplicateEntry checks if the error is a duplicate entry error
func IsDuplicateEntry(err error) bool {
	return errors.Is(err, ErrDuplicateEntry)
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsAuthError checks if the error is a provider credential failure
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsInvalidCursor checks if the error is a stale-cursor failure
func IsInvalidCursor(err error) bool {
	return errors.Is(err, ErrInvalidCursor)
}

// GetErrorCode returns the appropriate error code for an error
func GetErrorCode(err error) string {
	switch {
	case IsNotFound(err):
		return CodeNotFound
	case IsDuplicateEntry(err):
		return CodeDuplicateEntry
	case IsInvalidInput(err):
		return CodeInvalidInput
	case errors.Is(err, ErrConnectionInactive):
		return CodeConnectionInactive
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case IsAuthError(err):
		return CodeAuthFailed
	case IsInvalidCursor(err):
		return CodeInvalidCursor
	case errors.Is(err, ErrProvider):
		return CodeProviderError
	case errors.Is(err, ErrDelivery):
		return CodeDeliveryFailed
	default:
		return CodeInternalError
	}
}
