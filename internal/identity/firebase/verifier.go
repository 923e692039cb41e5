// Package firebase verifies Firebase Authentication ID tokens.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"chapel/internal/identity"
)

const (
	issuerPrefix = "https://securetoken.google.com/"
	// JWKSURL publishes the keys that sign Firebase ID tokens.
	JWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

type tokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Verifier checks RS256 signature, issuer, audience and expiry.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// Option configures a Verifier.
type Option func(*settings)

type settings struct {
	keySet oidc.KeySet
	now    func() time.Time
}

// WithKeySet replaces the remote Google key set, e.g. with oidc.StaticKeySet in tests.
func WithKeySet(ks oidc.KeySet) Option {
	return func(s *settings) { s.keySet = ks }
}

// WithClock injects the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// New builds a Verifier for projectID. Keys are fetched lazily and cached by go-oidc.
func New(ctx context.Context, projectID string, opts ...Option) *Verifier {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.keySet == nil {
		s.keySet = oidc.NewRemoteKeySet(ctx, JWKSURL)
	}
	return &Verifier{
		verifier: oidc.NewVerifier(issuerPrefix+projectID, fetchTrackingKeySet{s.keySet}, &oidc.Config{
			ClientID:             projectID,
			SupportedSigningAlgs: []string{oidc.RS256},
			Now:                  s.now,
		}),
	}
}

// Verify implements identity.Provider.
func (v *Verifier) Verify(ctx context.Context, token string) (*identity.Identity, error) {
	if token == "" {
		return nil, identity.ErrTokenInvalid
	}
	var fetch keyFetch
	idToken, err := v.verifier.Verify(context.WithValue(ctx, keyFetchKey{}, &fetch), token)
	if err != nil {
		if fetch.err != nil {
			return nil, fmt.Errorf("firebase: signing keys unavailable: %w", fetch.err)
		}
		return nil, fmt.Errorf("%w: %w", identity.ErrTokenInvalid, err)
	}

	var c tokenClaims
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("%w: decode claims: %w", identity.ErrTokenInvalid, err)
	}
	id := c.UserID
	if id == "" {
		id = idToken.Subject
	}
	if id == "" {
		return nil, identity.ErrUserNotFound
	}
	return &identity.Identity{ID: id, Email: c.Email}, nil
}

// go-oidc flattens key set errors into its own message, so key fetch
// failures are captured per call through the context instead.
type keyFetchKey struct{}

type keyFetch struct{ err error }

type fetchTrackingKeySet struct{ oidc.KeySet }

func (k fetchTrackingKeySet) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := k.KeySet.VerifySignature(ctx, jwt)
	if err != nil && isKeyFetchFailure(err) {
		if f, ok := ctx.Value(keyFetchKey{}).(*keyFetch); ok {
			f.err = err
		}
	}
	return payload, err
}

// isKeyFetchFailure separates an unreachable or broken JWKS endpoint from a
// token whose signature does not verify.
func isKeyFetchFailure(err error) bool {
	var (
		urlErr *url.Error
		netErr net.Error
	)
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "fetching keys") ||
		strings.Contains(msg, "get keys failed") ||
		strings.Contains(msg, "failed to decode keys")
}
