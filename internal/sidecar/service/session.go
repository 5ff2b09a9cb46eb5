package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/store"
	"github.com/aussiebroadwan/sidecar/pkg/cryptox"
	"github.com/aussiebroadwan/sidecar/pkg/jwtx"
	"github.com/aussiebroadwan/sidecar/pkg/slogx"
	"golang.org/x/sync/singleflight"
)

// AccessTokenSkew is subtracted from the token's lifetime when deciding if a
// cached access token may still be used.
const AccessTokenSkew = 60 * time.Second

// accessState is replaced as a whole, never mutated in place.
type accessState struct {
	accessToken string
	expiresAt   time.Time // zero when unknown
	user        *domain.User
}

// SessionService owns the access token (memory only) and the refresh token
// (in the store). No other component writes either.
type SessionService struct {
	oauth  OAuthClient
	tokens store.RefreshTokens
	logger *slog.Logger

	now      func() time.Time
	skew     time.Duration
	expiryOf func(token string) (time.Time, bool)
	userOf   func(token string) *domain.User

	mu    sync.RWMutex
	state *accessState
	epoch uint64 // bumped by every clear and every login

	// storeMu orders refresh-token writes against clears.
	storeMu   sync.Mutex
	refreshes singleflight.Group
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

// WithSkew overrides AccessTokenSkew.
func WithSkew(d time.Duration) SessionOption {
	return func(s *SessionService) { s.skew = d }
}

// WithClaimDecoders replaces the token claim decoders.
func WithClaimDecoders(expiry func(string) (time.Time, bool), user func(string) *domain.User) SessionOption {
	return func(s *SessionService) {
		s.expiryOf = expiry
		s.userOf = user
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *SessionService) { s.logger = l }
}

// NewSessionService creates the session singleton. Construct it once per
// process.
func NewSessionService(oauth OAuthClient, tokens store.RefreshTokens, opts ...SessionOption) *SessionService {
	s := &SessionService{
		oauth:    oauth,
		tokens:   tokens,
		logger:   slog.Default(),
		now:      time.Now,
		skew:     AccessTokenSkew,
		expiryOf: jwtx.Expiry,
		userOf:   userFromToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func userFromToken(token string) *domain.User {
	id := jwtx.IdentityFromToken(token)
	if id == nil {
		return nil
	}
	return &domain.User{Subject: id.Subject, DisplayName: id.DisplayName}
}

// InitializeStoragePolicy asks the store for its most restrictive access
// policy. It never fails: a store without the capability is fine.
func (s *SessionService) InitializeStoragePolicy(ctx context.Context) {
	err := store.InitializePolicy(ctx, s.tokens)
	switch {
	case err == nil:
		s.logger.Info("refresh token store restricted to trusted contexts")
	case errors.Is(err, store.ErrPolicyUnsupported):
		s.logger.Debug("refresh token store has no access policy")
	default:
		s.logger.Warn("failed to restrict refresh token store", "error", err)
	}
}

// EnsureAccessToken returns the cached access token while it is usable and
// refreshes it otherwise. Fails with AUTH_REQUIRED when no refresh is
// possible.
func (s *SessionService) EnsureAccessToken(ctx context.Context) (string, error) {
	if st := s.usable(); st != nil {
		return st.accessToken, nil
	}
	return s.ForceRefreshAccessToken(ctx)
}

// usable returns the current state if its token is usable: now + skew must
// fall strictly before the expiry.
func (s *SessionService) usable() *accessState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	if st == nil || st.accessToken == "" || st.expiresAt.IsZero() {
		return nil
	}
	if !s.now().Add(s.skew).Before(st.expiresAt) {
		return nil
	}
	return st
}

// ForceRefreshAccessToken exchanges the stored refresh token for a new
// access token, whatever the state of the cached one. Concurrent callers
// share one exchange. A missing or rejected refresh token clears the session
// and fails with AUTH_REQUIRED; rejected refresh tokens are not retried.
func (s *SessionService) ForceRefreshAccessToken(ctx context.Context) (string, error) {
	// The exchange is shared, so no single caller may cancel it.
	flightCtx := context.WithoutCancel(ctx)

	v, err, shared := s.refreshes.Do("refresh", func() (any, error) {
		return s.refresh(flightCtx)
	})
	if shared {
		slogx.FromContext(ctx).Debug("joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *SessionService) refresh(ctx context.Context) (string, error) {
	log := slogx.FromContext(ctx)
	epoch := s.currentEpoch()

	refreshToken, err := s.tokens.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	if refreshToken == "" {
		s.ClearSession(ctx)
		return "", domain.NewError(domain.CodeAuthRequired, domain.MsgLoginRequired)
	}

	tokens, err := s.oauth.Refresh(ctx, refreshToken)
	if err != nil {
		log.Warn("token refresh failed, clearing session",
			"refresh_fp", cryptox.FingerprintToken(refreshToken),
			"error", err,
		)
		s.ClearSession(ctx)
		return "", domain.WrapError(domain.CodeAuthRequired, domain.MsgSessionExpired, err)
	}

	if err := s.apply(ctx, tokens, &epoch); err != nil {
		if errors.Is(err, errSessionReplaced) {
			// A login or logout landed first and owns the session now.
			log.Debug("discarding superseded token refresh", "refresh_fp", cryptox.FingerprintToken(tokens.RefreshToken))
			if st := s.usable(); st != nil {
				return st.accessToken, nil
			}
			return "", domain.WrapError(domain.CodeAuthRequired, domain.MsgSessionExpired, err)
		}
		s.ClearSession(ctx)
		return "", domain.WrapError(domain.CodeAuthRequired, domain.MsgSessionExpired, err)
	}

	log.Debug("access token refreshed", "refresh_fp", cryptox.FingerprintToken(tokens.RefreshToken))
	return tokens.AccessToken, nil
}

var errSessionReplaced = errors.New("session was cleared or replaced during refresh")

// apply persists a rotated refresh token and then swaps in the new access
// state. When expectEpoch is set and a clear or login happened since it was
// read, nothing is applied. Without expectEpoch (a login) the epoch is bumped
// so refreshes started earlier are discarded.
func (s *SessionService) apply(ctx context.Context, tokens *domain.Tokens, expectEpoch *uint64) error {
	next := &accessState{
		accessToken: tokens.AccessToken,
		user:        s.userOf(tokens.AccessToken),
	}
	if exp, ok := s.expiryOf(tokens.AccessToken); ok {
		next.expiresAt = exp
	} else if !tokens.Expiry.IsZero() {
		next.expiresAt = tokens.Expiry
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	if expectEpoch != nil && *expectEpoch != s.currentEpoch() {
		return errSessionReplaced
	}

	if tokens.RefreshToken != "" {
		if err := s.tokens.Write(ctx, tokens.RefreshToken); err != nil {
			return fmt.Errorf("failed to persist refresh token: %w", err)
		}
	}

	s.mu.Lock()
	s.state = next
	if expectEpoch == nil {
		s.epoch++
	}
	s.mu.Unlock()

	return nil
}

func (s *SessionService) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Login runs the interactive flow and returns the authenticated view.
// AUTH_FAILED from the provider is returned unchanged.
func (s *SessionService) Login(ctx context.Context) (domain.SessionView, error) {
	tokens, err := s.oauth.Login(ctx)
	if err != nil {
		slogx.FromContext(ctx).Warn("login failed", "error", err)
		return domain.LoggedOutView(), err
	}

	if err := s.apply(ctx, tokens, nil); err != nil {
		return domain.LoggedOutView(), err
	}

	view := s.view()
	slogx.FromContext(ctx).Info("login succeeded", "subject", subjectOf(view))
	return view, nil
}

// Logout forgets the session in memory and in the store. It always succeeds.
func (s *SessionService) Logout(ctx context.Context) {
	s.ClearSession(ctx)
	slogx.FromContext(ctx).Info("logged out")
}

// ClearSession drops the access state and, best effort, the stored refresh
// token.
func (s *SessionService) ClearSession(ctx context.Context) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	s.mu.Lock()
	s.state = nil
	s.epoch++
	s.mu.Unlock()

	if err := s.tokens.Clear(ctx); err != nil {
		slogx.FromContext(ctx).Warn("failed to clear stored refresh token", "error", err)
	}
}

// SessionView reports the authentication status. It never starts an
// interactive flow; with a stored refresh token it tries one silent refresh
// and reports logged out if that fails.
func (s *SessionService) SessionView(ctx context.Context) domain.SessionView {
	if s.usable() != nil {
		return s.view()
	}

	refreshToken, err := s.tokens.Read(ctx)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to read refresh token", "error", err)
		return domain.LoggedOutView()
	}
	if refreshToken == "" {
		return domain.LoggedOutView()
	}

	if _, err := s.ForceRefreshAccessToken(ctx); err != nil {
		return domain.LoggedOutView()
	}
	return s.view()
}

func (s *SessionService) view() domain.SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	if st == nil || st.accessToken == "" {
		return domain.LoggedOutView()
	}

	view := domain.SessionView{IsAuthenticated: true}
	if st.user != nil {
		u := *st.user
		view.User = &u
	}
	if !st.expiresAt.IsZero() {
		ms := st.expiresAt.UnixMilli()
		view.ExpiresAt = &ms
	}
	return view
}

func subjectOf(v domain.SessionView) string {
	if v.User == nil {
		return ""
	}
	return v.User.Subject
}
