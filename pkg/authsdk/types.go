package authsdk

import "time"

// TokenSet is what a successful token endpoint exchange yields.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string

	// Expiry is derived from expires_in when the provider sent it.
	Expiry time.Time
}

// PKCEChallenge holds the PKCE verifier and challenge pair.
// The verifier stays local; the challenge goes to the authorization endpoint.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string // always "S256"
}
