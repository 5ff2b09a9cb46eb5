package authsdk

import (
	"errors"
	"fmt"
)

// OAuth2 error codes (RFC 6749) this client reacts to.
const (
	ErrorCodeInvalidGrant = "invalid_grant"
	ErrorCodeAccessDenied = "access_denied"
)

// GenericFailureMessage is used when the provider gave no usable detail.
const GenericFailureMessage = "Keycloak authentication failed."

// OAuth2Error is a failure reported by the identity provider, either on the
// token endpoint or on the authorization redirect.
type OAuth2Error struct {
	// StatusCode is the HTTP status of the token response, or 0 when the
	// error arrived on the redirect.
	StatusCode int

	// Code is the OAuth2 error code (e.g., "invalid_grant").
	Code string

	// Description is the provider's human-readable error_description.
	Description string
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("oauth2 error %q (status %d): %s", e.Code, e.StatusCode, e.Description)
}

// Message returns the text to show a user: the description, else the code,
// else a generic message.
func (e *OAuth2Error) Message() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Code != "":
		return e.Code
	default:
		return GenericFailureMessage
	}
}

// FlowError is a local failure of the interactive login that is not the
// provider's doing, such as a missing code or a state mismatch.
type FlowError struct {
	Msg string
	Err error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *FlowError) Unwrap() error { return e.Err }

// Is matches on the message so sentinel comparisons survive wrapping.
func (e *FlowError) Is(target error) bool {
	var t *FlowError
	return errors.As(target, &t) && t.Msg == e.Msg
}

var (
	ErrMissingCallback = &FlowError{Msg: "Login callback URL is missing."}
	ErrStateMismatch   = &FlowError{Msg: "OAuth state validation failed."}
	ErrMissingCode     = &FlowError{Msg: "Authorization code was not returned."}
	ErrNoAccessToken   = &FlowError{Msg: "Keycloak did not return an access token."}
	ErrNoRefreshToken  = &FlowError{Msg: "No refresh token to exchange."}
	ErrNoWebAuthFlow   = &FlowError{Msg: "Interactive login is not available."}
	ErrLoginCancelled  = &FlowError{Msg: "Login flow was cancelled."}
	ErrLoginTimedOut   = &FlowError{Msg: "Login timed out waiting for the browser."}
)

// TransportError means the identity provider could not be reached.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "identity provider unreachable: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
