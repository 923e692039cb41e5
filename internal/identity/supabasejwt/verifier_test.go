package supabasejwt

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chapel/internal/identity"
)

const secret = "super-secret-jwt-token-with-at-least-32-characters"

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sign(t *testing.T, method jwt.SigningMethod, key any, c jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString(key)
	require.NoError(t, err)
	return s
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "5f0c2d1e-user",
		"email": "grace@example.org",
		"aud":   "authenticated",
		"exp":   fixedNow.Add(time.Hour).Unix(),
		"iat":   fixedNow.Add(-time.Minute).Unix(),
	}
}

func newVerifier(opts ...Option) *Verifier {
	return New(secret, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func TestVerifyValidToken(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), baseClaims())

	got, err := newVerifier().Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "5f0c2d1e-user", got.ID)
	assert.Equal(t, "grace@example.org", got.Email)
}

func TestVerifyRejections(t *testing.T) {
	expired := baseClaims()
	expired["exp"] = fixedNow.Add(-time.Minute).Unix()

	wrongAud := baseClaims()
	wrongAud["aud"] = "anon"

	noExp := baseClaims()
	delete(noExp, "exp")

	tests := map[string]string{
		"expired":        sign(t, jwt.SigningMethodHS256, []byte(secret), expired),
		"wrong secret":   sign(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), baseClaims()),
		"wrong audience": sign(t, jwt.SigningMethodHS256, []byte(secret), wrongAud),
		"missing exp":    sign(t, jwt.SigningMethodHS256, []byte(secret), noExp),
		"wrong alg":      sign(t, jwt.SigningMethodHS512, []byte(secret), baseClaims()),
		"garbage":        "not.a.jwt",
		"empty":          "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := newVerifier().Verify(context.Background(), token)
			assert.ErrorIs(t, err, identity.ErrTokenInvalid)
		})
	}
}

func TestVerifyMissingSubject(t *testing.T) {
	c := baseClaims()
	delete(c, "sub")
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), c)

	_, err := newVerifier().Verify(context.Background(), token)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestVerifyLeewayAndAudienceOverride(t *testing.T) {
	c := baseClaims()
	c["exp"] = fixedNow.Add(-10 * time.Second).Unix()
	c["aud"] = "service"
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), c)

	_, err := newVerifier(WithLeeway(30*time.Second), WithAudience("service")).Verify(context.Background(), token)
	assert.NoError(t, err)
}
