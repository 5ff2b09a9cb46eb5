package authsdk

import (
	"context"
	"errors"
	"fmt"
)

// Login runs the interactive authorization-code + PKCE flow once. It is
// terminal on the first success or failure and cannot be resumed.
//
// Failures are *FlowError or *OAuth2Error for anything the user or provider
// caused, and *TransportError when the token endpoint could not be reached.
func (c *Client) Login(ctx context.Context) (*TokenSet, error) {
	if c.flow == nil {
		return nil, ErrNoWebAuthFlow
	}

	pkce, err := GeneratePKCEChallenge()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare login: %w", err)
	}
	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare login: %w", err)
	}

	redirectURI := c.flow.RedirectURL()
	authURL := c.BuildAuthorizeURL(redirectURI, state, pkce)

	c.logger.Info("starting interactive login", "client_id", c.cfg.ClientID, "redirect_uri", redirectURI)

	callbackURL, err := c.flow.Launch(ctx, authURL)
	if err != nil {
		c.logger.Warn("login flow did not complete", "error", err)
		return nil, launchError(err)
	}

	code, err := ParseAuthorizationCallback(callbackURL, state)
	if err != nil {
		c.logger.Warn("login callback rejected", "error", err)
		return nil, err
	}

	tokens, err := c.ExchangeAuthorizationCode(ctx, code, pkce.Verifier, redirectURI)
	if err != nil {
		return nil, err
	}

	c.logger.Info("interactive login completed", "client_id", c.cfg.ClientID)
	return tokens, nil
}

// launchError keeps the reason a WebAuthFlow gave up. An empty redirect is
// reported by ParseAuthorizationCallback instead.
func launchError(err error) *FlowError {
	var flowErr *FlowError
	switch {
	case errors.As(err, &flowErr):
		return flowErr
	case errors.Is(err, context.Canceled):
		return &FlowError{Msg: ErrLoginCancelled.Msg, Err: err}
	case errors.Is(err, ErrCallbackTimeout), errors.Is(err, context.DeadlineExceeded):
		return &FlowError{Msg: ErrLoginTimedOut.Msg, Err: err}
	default:
		return &FlowError{Msg: "Login flow failed: " + err.Error(), Err: err}
	}
}
