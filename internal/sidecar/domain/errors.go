package domain

import (
	"errors"
	"fmt"
)

// Code classifies a failure at the message boundary. The set is closed.
type Code string

const (
	// CodeAuthRequired means there is no valid or refreshable session.
	CodeAuthRequired Code = "AUTH_REQUIRED"
	// CodeAuthFailed means an interactive or refresh token exchange failed.
	CodeAuthFailed Code = "AUTH_FAILED"
	// CodeForbidden means the caller is authenticated but not permitted.
	CodeForbidden Code = "FORBIDDEN"
	// CodeForbiddenContext means the message sender is not trusted for the
	// operation.
	CodeForbiddenContext Code = "FORBIDDEN_CONTEXT"
	// CodeValidation means the request or its input was malformed.
	CodeValidation Code = "VALIDATION"
	// CodeNetwork covers transport failures and unclassified upstream errors.
	CodeNetwork Code = "NETWORK"
)

// Error is a failure carrying a boundary code and a user-facing message.
// Err, when set, is the underlying cause and is never shown to callers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a typed error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a typed error that keeps err as its cause.
func WrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// Messages shared by more than one component.
const (
	MsgLoginRequired   = "A login session is required."
	MsgSessionExpired  = "Session expired. Please login again."
	MsgRequestFailed   = "Request failed."
	MsgInvalidPayload  = "Invalid message payload."
	MsgUntrustedSender = "Untrusted sender."
)
