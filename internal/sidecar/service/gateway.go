package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/aussiebroadwan/sidecar/pkg/slogx"
)

const (
	// DefaultHTTPTimeout bounds a single backend round trip.
	DefaultHTTPTimeout = 30 * time.Second

	maxResponseBytes = 4 << 20

	msgNetworkFailed = "Network request failed."
)

// AccessTokens is the part of the session the gateway relies on.
type AccessTokens interface {
	EnsureAccessToken(ctx context.Context) (string, error)
	ForceRefreshAccessToken(ctx context.Context) (string, error)
	ClearSession(ctx context.Context)
}

// Request describes one backend call. Path is appended to the API base URL
// unless it is an absolute URL on the same origin. Body, when not nil, is
// sent as JSON.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   any
}

// Gateway sends backend requests with the session's bearer token and
// retries once after a forced refresh when the backend answers 401.
type Gateway struct {
	base   string
	origin *url.URL
	client *http.Client
	tokens AccessTokens
	logger *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayHTTPClient replaces the default HTTP client.
func WithGatewayHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) { g.client = c }
}

// WithGatewayLogger sets the logger.
func WithGatewayLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a gateway for the API rooted at baseURL.
func NewGateway(baseURL string, tokens AccessTokens, opts ...GatewayOption) (*Gateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q: must be an absolute http(s) URL", baseURL)
	}

	g := &Gateway{
		base:   strings.TrimRight(baseURL, "/"),
		origin: &url.URL{Scheme: u.Scheme, Host: u.Host},
		client: &http.Client{Timeout: DefaultHTTPTimeout},
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// BaseURL returns the API base URL without a trailing slash.
func (g *Gateway) BaseURL() string { return g.base }

// RequestJSON performs req and returns the response body. Empty or
// malformed bodies are returned as an empty object.
//
// A 401 triggers exactly one forced refresh and one retry. A failed refresh
// or a second 401 clears the session and returns AUTH_REQUIRED. Other
// non-2xx statuses map to VALIDATION (400), FORBIDDEN (403) or NETWORK.
func (g *Gateway) RequestJSON(ctx context.Context, req Request) (json.RawMessage, error) {
	target, err := g.resolve(req.Path)
	if err != nil {
		return nil, err
	}

	var body []byte
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	token, err := g.tokens.EnsureAccessToken(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.CodeAuthRequired, domain.MsgLoginRequired, err)
	}

	status, raw, err := g.send(ctx, req, target, body, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		slogx.FromContext(ctx).Debug("backend rejected access token, refreshing", "path", req.Path)

		token, err = g.tokens.ForceRefreshAccessToken(ctx)
		if err != nil {
			g.tokens.ClearSession(ctx)
			return nil, domain.WrapError(domain.CodeAuthRequired, domain.MsgSessionExpired, err)
		}

		status, raw, err = g.send(ctx, req, target, body, token)
		if err != nil {
			return nil, err
		}

		if status == http.StatusUnauthorized {
			g.tokens.ClearSession(ctx)
			return nil, domain.NewError(domain.CodeAuthRequired, domain.MsgSessionExpired)
		}
	}

	if status < 200 || status > 299 {
		return nil, statusError(status, raw)
	}

	return normalizeBody(raw), nil
}

func (g *Gateway) resolve(path string) (string, error) {
	if !strings.Contains(path, "://") {
		if path != "" && !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return g.base + path, nil
	}

	u, err := url.Parse(path)
	if err != nil || u.Scheme != g.origin.Scheme || !strings.EqualFold(u.Host, g.origin.Host) {
		return "", domain.NewError(domain.CodeValidation, "Request URL is outside the API origin.")
	}
	return u.String(), nil
}

func (g *Gateway) send(ctx context.Context, req Request, target string, body []byte, token string) (int, []byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Warn("backend request failed", "method", method, "url", target, "error", err)
		return 0, nil, domain.WrapError(domain.CodeNetwork, msgNetworkFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, domain.WrapError(domain.CodeNetwork, msgNetworkFailed, err)
	}

	g.logger.Debug("backend request",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return resp.StatusCode, raw, nil
}

func normalizeBody(raw []byte) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(raw)
}

func statusError(status int, raw []byte) error {
	message := fmt.Sprintf("Request failed with status %d", status)

	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(normalizeBody(raw), &body); err == nil {
		if detail, ok := body.Detail.(string); ok {
			message = detail
		}
	}

	switch status {
	case http.StatusBadRequest:
		return domain.NewError(domain.CodeValidation, message)
	case http.StatusForbidden:
		return domain.NewError(domain.CodeForbidden, message)
	default:
		return domain.NewError(domain.CodeNetwork, message)
	}
}

// DecodeJSON decodes a gateway response into T. A body that does not fit T
// is a NETWORK failure.
func DecodeJSON[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, domain.WrapError(domain.CodeNetwork, "Unexpected response from server.", err)
	}
	return out, nil
}
