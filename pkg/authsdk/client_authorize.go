package authsdk

import (
	"fmt"
	"net/url"

	"github.com/aussiebroadwan/sidecar/pkg/cryptox"
	"golang.org/x/oauth2"
)

// GeneratePKCEChallenge creates a new PKCE code verifier and S256 challenge
// pair. The verifier carries 512 bits of entropy.
func GeneratePKCEChallenge() (*PKCEChallenge, error) {
	verifier, err := cryptox.GenerateToken(cryptox.VerifierSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: cryptox.S256Challenge(verifier),
		Method:    "S256",
	}, nil
}

// GenerateState creates an unpredictable anti-CSRF state value.
func GenerateState() (string, error) {
	state, err := cryptox.GenerateToken(cryptox.StateSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return state, nil
}

// BuildAuthorizeURL constructs the authorization URL for the code flow with
// response_type=code, the redirect URI, the configured scopes, state and the
// S256 code challenge.
//
// Example:
//
//	pkce, _ := authsdk.GeneratePKCEChallenge()
//	state, _ := authsdk.GenerateState()
//	u := client.BuildAuthorizeURL("http://127.0.0.1:3000/callback", state, pkce)
//	// keep pkce.Verifier and state for the callback
func (c *Client) BuildAuthorizeURL(redirectURI, state string, pkce *PKCEChallenge) string {
	return c.oauthConfig(redirectURI).AuthCodeURL(state, oauth2.S256ChallengeOption(pkce.Verifier))
}

// ParseAuthorizationCallback validates the redirect the provider sent back
// and returns the authorization code. Checks run in order: the state must
// match exactly, the redirect must not carry an error, and a code must be
// present.
//
// Example:
//
//	code, err := authsdk.ParseAuthorizationCallback(redirect, state)
//	if err != nil {
//	    // *FlowError or *OAuth2Error
//	}
func ParseAuthorizationCallback(callbackURL, expectedState string) (string, error) {
	if callbackURL == "" {
		return "", ErrMissingCallback
	}

	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", &FlowError{Msg: ErrMissingCallback.Msg, Err: err}
	}
	query := u.Query()

	if query.Get("state") != expectedState {
		return "", ErrStateMismatch
	}

	if code, desc := query.Get("error"), query.Get("error_description"); code != "" || desc != "" {
		return "", &OAuth2Error{Code: code, Description: desc}
	}

	code := query.Get("code")
	if code == "" {
		return "", ErrMissingCode
	}

	return code, nil
}
