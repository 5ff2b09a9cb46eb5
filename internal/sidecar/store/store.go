package store

import (
	"context"
	"errors"
)

// RefreshTokenKey is the well-known key the refresh token is stored under.
const RefreshTokenKey = "auth.refresh-token.v1"

var (
	// ErrPolicyUnsupported is returned by InitializePolicy when the store
	// cannot restrict which contexts may read it.
	ErrPolicyUnsupported = errors.New("store: access policy not supported")
)

// RefreshTokens persists exactly one secret: the current refresh token.
// Presence means a session previously existed; absence means logged out.
type RefreshTokens interface {
	// Read returns the stored token, or "" when there is none.
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// AccessPolicy restricts which execution contexts may read the store.
type AccessPolicy string

const (
	// PolicyTrustedContexts limits access to the process' own trusted code.
	PolicyTrustedContexts AccessPolicy = "TRUSTED_CONTEXTS"
	// PolicyUntrustedContexts also admits untrusted readers.
	PolicyUntrustedContexts AccessPolicy = "TRUSTED_AND_UNTRUSTED_CONTEXTS"
)

// AccessPolicySetter is an optional capability of a RefreshTokens driver.
type AccessPolicySetter interface {
	SetAccessPolicy(ctx context.Context, policy AccessPolicy) error
}

// Pinger is implemented by drivers backed by an external resource.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InitializePolicy requests the most restrictive access policy s supports.
// It must run before the first Write.
func InitializePolicy(ctx context.Context, s RefreshTokens) error {
	setter, ok := s.(AccessPolicySetter)
	if !ok {
		return ErrPolicyUnsupported
	}
	return setter.SetAccessPolicy(ctx, PolicyTrustedContexts)
}
