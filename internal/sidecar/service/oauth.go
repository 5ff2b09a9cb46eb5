package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/aussiebroadwan/sidecar/pkg/authsdk"
)

// OAuthClient is what the session needs from the identity provider.
type OAuthClient interface {
	// Login runs the interactive flow. Failures are AUTH_FAILED or NETWORK.
	Login(ctx context.Context) (*domain.Tokens, error)
	// Refresh exchanges a refresh token without user interaction.
	Refresh(ctx context.Context, refreshToken string) (*domain.Tokens, error)
}

// KeycloakClient adapts authsdk.Client to OAuthClient and translates its
// errors into the boundary taxonomy.
type KeycloakClient struct {
	Client *authsdk.Client
}

var _ OAuthClient = (*KeycloakClient)(nil)

func (k *KeycloakClient) Login(ctx context.Context) (*domain.Tokens, error) {
	set, err := k.Client.Login(ctx)
	if err != nil {
		return nil, oauthError(err)
	}
	return toDomainTokens(set), nil
}

func (k *KeycloakClient) Refresh(ctx context.Context, refreshToken string) (*domain.Tokens, error) {
	set, err := k.Client.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, oauthError(err)
	}
	return toDomainTokens(set), nil
}

func toDomainTokens(set *authsdk.TokenSet) *domain.Tokens {
	return &domain.Tokens{
		AccessToken:  set.AccessToken,
		RefreshToken: set.RefreshToken,
		Expiry:       set.Expiry,
		IDToken:      set.IDToken,
	}
}

func oauthError(err error) error {
	var (
		transportErr *authsdk.TransportError
		oauthErr     *authsdk.OAuth2Error
		flowErr      *authsdk.FlowError
	)

	switch {
	case errors.As(err, &transportErr):
		return domain.WrapError(domain.CodeNetwork, domain.MsgRequestFailed, err)
	case errors.As(err, &oauthErr):
		return domain.WrapError(domain.CodeAuthFailed, oauthErr.Message(), err)
	case errors.As(err, &flowErr):
		return domain.WrapError(domain.CodeAuthFailed, flowErr.Msg, err)
	default:
		return err
	}
}
