package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput          ErrorCode = "invalid_input"
	InvalidAmount         ErrorCode = "invalid_amount"
	InvalidCurrency       ErrorCode = "invalid_currency"
	InvalidSubscriber     ErrorCode = "invalid_subscriber"
	TransactionNotFound   ErrorCode = "transaction_not_found"
	UnknownTransaction    ErrorCode = "unknown_transaction"
	InvalidTransition     ErrorCode = "invalid_transition"
	TransactionTerminal   ErrorCode = "transaction_terminal"
	TransactionNotReady   ErrorCode = "transaction_not_ready"
	DuplicateTransaction  ErrorCode = "duplicate_transaction"
	ChannelUnavailable    ErrorCode = "channel_unavailable"
	ChannelTimeout        ErrorCode = "channel_timeout"
	AuthenticationFailed  ErrorCode = "authentication_failed"
	NotificationFailed    ErrorCode = "notification_failed"
	IdempotencyStoreError ErrorCode = "idempotency_store_error"
	InternalError         ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any AppError carrying the same code, so predefined errors can be
// compared with errors.Is after WithDetails or Wrap produced a copy.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy of e carrying details. The receiver is left
// untouched so the predefined errors below stay immutable.
func (e *AppError) WithDetails(details string) *AppError {
	c := *e
	c.Details = details
	return &c
}

// Wrap returns a copy of e that records cause as its underlying error.
func (e *AppError) Wrap(cause error) *AppError {
	c := *e
	c.cause = cause
	if cause != nil && c.Details == "" {
		c.Details = cause.Error()
	}
	return &c
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount, InvalidCurrency, InvalidSubscriber:
		return http.StatusBadRequest
	case TransactionNotFound, UnknownTransaction:
		return http.StatusNotFound
	case InvalidTransition, TransactionTerminal, TransactionNotReady, DuplicateTransaction:
		return http.StatusConflict
	case ChannelUnavailable, AuthenticationFailed, NotificationFailed:
		return http.StatusBadGateway
	case ChannelTimeout:
		return http.StatusGatewayTimeout
	case IdempotencyStoreError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// AsAppError returns err as an *AppError, falling back to an internal error
// that keeps the original message as details.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(InternalError, "an unexpected error occurred").Wrap(err)
}

// Predefined errors for common cases
var (
	ErrInvalidAmount        = NewAppError(InvalidAmount, "amount violates the currency amount policy")
	ErrInvalidCurrency      = NewAppError(InvalidCurrency, "unsupported currency")
	ErrInvalidSubscriber    = NewAppError(InvalidSubscriber, "malformed subscriber identifier")
	ErrTransactionNotFound  = NewAppError(TransactionNotFound, "transaction not found")
	ErrUnknownTransaction   = NewAppError(UnknownTransaction, "webhook references an unknown transaction")
	ErrInvalidTransition    = NewAppError(InvalidTransition, "transaction state does not allow this transition")
	ErrTransactionTerminal  = NewAppError(TransactionTerminal, "transaction already reached a terminal state")
	ErrTransactionNotReady  = NewAppError(TransactionNotReady, "transaction has not been assigned to a channel yet")
	ErrDuplicateTransaction = NewAppError(DuplicateTransaction, "transaction already exists")
	ErrChannelUnavailable   = NewAppError(ChannelUnavailable, "payment channel unavailable")
	ErrChannelTimeout       = NewAppError(ChannelTimeout, "payment channel timed out")
	ErrAuthenticationFailed = NewAppError(AuthenticationFailed, "upstream authentication failed")
	ErrNotificationFailed   = NewAppError(NotificationFailed, "settlement notification failed")
	ErrIdempotencyStore     = NewAppError(IdempotencyStoreError, "idempotency ledger unavailable")
)
