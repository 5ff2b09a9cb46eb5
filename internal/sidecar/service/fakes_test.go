package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/store/drivers/memory"
	"github.com/aussiebroadwan/sidecar/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var testNow = time.UnixMilli(1_700_000_000_000)

// accessToken builds an unsigned token carrying sub, preferred_username and,
// when exp is non-zero, an exp claim.
func accessToken(t *testing.T, sub, name string, exp time.Time) string {
	t.Helper()

	claims := map[string]any{"sub": sub}
	if name != "" {
		claims["preferred_username"] = name
	}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"RS256"}`)) + "." + enc.EncodeToString(payload) + ".sig"
}

// fakeOAuth scripts the identity provider. When gate is set, Refresh blocks
// until it is closed.
type fakeOAuth struct {
	mu         sync.Mutex
	login      *domain.Tokens
	loginErr   error
	refresh    func(rt string) (*domain.Tokens, error)
	gate       chan struct{}
	refreshRTs []string

	refreshCalls atomic.Int32
	loginCalls   atomic.Int32
}

func (f *fakeOAuth) Login(context.Context) (*domain.Tokens, error) {
	f.loginCalls.Add(1)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.login, nil
}

func (f *fakeOAuth) Refresh(_ context.Context, rt string) (*domain.Tokens, error) {
	f.refreshCalls.Add(1)
	f.mu.Lock()
	f.refreshRTs = append(f.refreshRTs, rt)
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if f.refresh == nil {
		return nil, domain.NewError(domain.CodeAuthFailed, "invalid_grant")
	}
	return f.refresh(rt)
}

func newTestSession(oauth *fakeOAuth, opts ...SessionOption) (*SessionService, *memory.Store) {
	tokens := memory.New()
	opts = append([]SessionOption{
		WithClock(func() time.Time { return testNow }),
		WithSessionLogger(slogx.Discard()),
	}, opts...)
	return NewSessionService(oauth, tokens, opts...), tokens
}

// stubTokens is a scripted AccessTokens for gateway-level tests.
type stubTokens struct {
	mu         sync.Mutex
	token      string
	ensureErr  error
	refreshed  string
	refreshErr error

	refreshCalls int
	clearCalls   int
}

func (s *stubTokens) EnsureAccessToken(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.ensureErr
}

func (s *stubTokens) ForceRefreshAccessToken(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	if s.refreshErr != nil {
		return "", s.refreshErr
	}
	s.token = s.refreshed
	return s.token, nil
}

func (s *stubTokens) ClearSession(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearCalls++
	s.token = ""
}

func newTestGateway(t *testing.T, baseURL string, tokens AccessTokens) *Gateway {
	t.Helper()
	g, err := NewGateway(baseURL, tokens, WithGatewayLogger(slogx.Discard()))
	require.NoError(t, err)
	return g
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requireCode(t *testing.T, err error, code domain.Code, message string) {
	t.Helper()
	require.Error(t, err)
	derr, ok := domain.AsError(err)
	require.True(t, ok, "expected *domain.Error, got %T: %v", err, err)
	require.Equal(t, code, derr.Code)
	if message != "" {
		require.Equal(t, message, derr.Message)
	}
}
