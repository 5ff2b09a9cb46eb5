package authsdk

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/sidecar/pkg/cryptox"
	"golang.org/x/oauth2"
)

// ExchangeAuthorizationCode trades an authorization code and its PKCE
// verifier for tokens. redirectURI must be the one used to obtain the code.
func (c *Client) ExchangeAuthorizationCode(
	ctx context.Context,
	code, verifier, redirectURI string,
) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauthConfig(redirectURI).Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, c.tokenError("authorization_code", err)
	}

	return toTokenSet(tok)
}

// Refresh exchanges a refresh token for new tokens. It never prompts.
// Every failure is returned as is; deciding whether the session is over is
// the caller's business.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	// An empty access token forces the source to hit the token endpoint.
	src := c.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, c.tokenError("refresh_token", err)
	}

	c.logger.Debug("refresh token exchanged",
		"rotated", tok.RefreshToken != refreshToken,
		"refresh_fp", cryptox.FingerprintToken(tok.RefreshToken),
	)

	return toTokenSet(tok)
}

func toTokenSet(tok *oauth2.Token) (*TokenSet, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, ErrNoAccessToken
	}

	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		set.IDToken = id
	}
	return set, nil
}

// tokenError classifies an x/oauth2 failure.
func (c *Client) tokenError(grant string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		c.logger.Warn("token endpoint rejected grant",
			"grant_type", grant,
			"status", status,
			"error_code", retrieveErr.ErrorCode,
		)
		return &OAuth2Error{
			StatusCode:  status,
			Code:        retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
		}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.logger.Warn("token endpoint unreachable", "grant_type", grant, "error", err)
		return &TransportError{Err: err}
	}

	// x/oauth2 reports a 2xx response without access_token as an untyped error.
	if strings.Contains(err.Error(), "missing access_token") {
		return ErrNoAccessToken
	}

	c.logger.Warn("token exchange failed", "grant_type", grant, "error", err)
	return &OAuth2Error{}
}
