package domain

import "time"

// User is the identity derived from the current access token.
type User struct {
	Subject     string `json:"subject"`
	DisplayName string `json:"displayName"`
}

// Tokens is the result of a token endpoint exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string    // empty when the provider returned none
	Expiry       time.Time // zero when the provider sent no expires_in
	IDToken      string
}

// SessionView is a read-only snapshot of the authentication status. It is
// computed on demand and never stored.
type SessionView struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	User            *User  `json:"user"`
	ExpiresAt       *int64 `json:"expiresAt"` // epoch milliseconds
}

// LoggedOutView is the view returned whenever no usable session exists.
func LoggedOutView() SessionView {
	return SessionView{}
}
