package service

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
)

// BrowserControlService relays browser-control actions to the backend and
// hands out access tokens for the event stream.
type BrowserControlService struct {
	gateway *Gateway
	tokens  AccessTokens
}

func NewBrowserControlService(gateway *Gateway, tokens AccessTokens) *BrowserControlService {
	return &BrowserControlService{gateway: gateway, tokens: tokens}
}

// SSEToken returns a usable access token for the browser-control event
// stream.
func (s *BrowserControlService) SSEToken(ctx context.Context) (*domain.SSEToken, error) {
	token, err := s.tokens.EnsureAccessToken(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.CodeAuthRequired, domain.MsgLoginRequired, err)
	}
	return &domain.SSEToken{AccessToken: token}, nil
}

// SendAction dispatches one action.
func (s *BrowserControlService) SendAction(ctx context.Context, action domain.BrowserControlAction) (*domain.BrowserControlDispatch, error) {
	if !action.Valid() {
		return nil, domain.NewError(domain.CodeValidation, "Unsupported action.")
	}

	raw, err := s.gateway.RequestJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   "/browser-control/actions",
		Body:   map[string]domain.BrowserControlAction{"action": action},
	})
	if err != nil {
		return nil, err
	}

	dispatch, err := DecodeJSON[domain.BrowserControlDispatch](raw)
	if err != nil {
		return nil, err
	}
	return &dispatch, nil
}
