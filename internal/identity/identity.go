// Package identity defines how bearer tokens become verified identities.
// Each backend lives in its own subpackage; the process picks exactly one.
package identity

import (
	"context"
	"errors"
)

var (
	// ErrTokenInvalid means the provider rejected the token (bad signature,
	// expired, malformed or revoked).
	ErrTokenInvalid = errors.New("identity: token invalid")
	// ErrUserNotFound means the token was accepted but names no user.
	ErrUserNotFound = errors.New("identity: user not found")
)

// Identity is the verified subject of a bearer token.
type Identity struct {
	ID    string
	Email string
}

// Provider resolves a bearer token to an Identity. Implementations do not retry.
type Provider interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, token string) (*Identity, error)

func (f ProviderFunc) Verify(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}
