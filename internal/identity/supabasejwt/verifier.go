// Package supabasejwt verifies Supabase access tokens locally with the
// project's HS256 JWT secret, avoiding a round trip to the auth server.
package supabasejwt

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chapel/internal/identity"
)

// DefaultAudience is the audience Supabase stamps on user access tokens.
const DefaultAudience = "authenticated"

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 signatures and standard time claims.
type Verifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithAudience overrides the expected audience. Empty disables the check.
func WithAudience(aud string) Option {
	return func(v *Verifier) { v.audience = aud }
}

// WithLeeway allows for clock skew when checking exp/nbf.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) { v.leeway = d }
}

// WithClock injects the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func New(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret:   []byte(secret),
		audience: DefaultAudience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify implements identity.Provider.
func (v *Verifier) Verify(_ context.Context, token string) (*identity.Identity, error) {
	if token == "" {
		return nil, identity.ErrTokenInvalid
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", identity.ErrTokenInvalid, err)
	}
	if c.Subject == "" {
		return nil, identity.ErrUserNotFound
	}
	return &identity.Identity{ID: c.Subject, Email: c.Email}, nil
}
