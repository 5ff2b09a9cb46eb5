package authsdk

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultScopes are requested when Config.Scopes is empty.
var DefaultScopes = []string{"openid", "profile"}

// Config identifies the Keycloak realm and public client to authenticate
// against.
type Config struct {
	// BaseURL is the Keycloak root, e.g. "http://localhost:8080".
	BaseURL string
	// Realm is the Keycloak realm name.
	Realm string
	// ClientID is the public (secretless) client registered for PKCE.
	ClientID string
	// Scopes requested on login.
	Scopes []string
}

// Issuer returns the realm's issuer URL.
func (c Config) Issuer() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/realms/" + c.Realm
}

// AuthURL is the realm's authorization endpoint.
func (c Config) AuthURL() string {
	return c.Issuer() + "/protocol/openid-connect/auth"
}

// TokenURL is the realm's token endpoint.
func (c Config) TokenURL() string {
	return c.Issuer() + "/protocol/openid-connect/token"
}

// Client performs the authorization-code + PKCE login and the refresh-token
// exchange against a Keycloak realm.
type Client struct {
	cfg        Config
	httpClient *http.Client
	flow       WebAuthFlow
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for token endpoint calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithWebAuthFlow sets the interactive step used by Login.
func WithWebAuthFlow(flow WebAuthFlow) Option {
	return func(c *Client) { c.flow = flow }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the client's configuration.
func (c *Client) Config() Config { return c.cfg }

// oauthConfig builds the x/oauth2 view of the client for one redirect URI.
// Credentials travel in the form body since the client is public.
func (c *Client) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.cfg.AuthURL(),
			TokenURL:  c.cfg.TokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      c.cfg.Scopes,
	}
}
