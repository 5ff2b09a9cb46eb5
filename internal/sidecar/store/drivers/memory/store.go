// Package memory is a process-lifetime refresh-token store. Nothing survives
// a restart, which mirrors browser session storage.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/store"
)

type Store struct {
	mu     sync.RWMutex
	token  string
	policy store.AccessPolicy
}

var (
	_ store.RefreshTokens      = (*Store)(nil)
	_ store.AccessPolicySetter = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

func (s *Store) Read(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *Store) Write(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// SetAccessPolicy records the requested policy. Every reader of an
// in-process store is already a trusted context.
func (s *Store) SetAccessPolicy(_ context.Context, policy store.AccessPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = policy
	return nil
}

// Policy returns the last policy requested, or "" when none was.
func (s *Store) Policy() store.AccessPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}
