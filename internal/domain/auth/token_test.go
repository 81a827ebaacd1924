package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens, err := NewTokens("secret", "artisan", time.Hour)
	require.NoError(t, err)

	raw, err := tokens.Issue("user-1")
	require.NoError(t, err)

	s, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", s.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.ExpiresAt, 5*time.Second)
}

func TestTokens_RequiresSecret(t *testing.T) {
	_, err := NewTokens("", "", 0)
	require.Error(t, err)
}

func TestTokens_Rejects(t *testing.T) {
	tokens, err := NewTokens("secret", "artisan", time.Hour)
	require.NoError(t, err)
	other, err := NewTokens("other", "artisan", time.Hour)
	require.NoError(t, err)
	foreign, err := NewTokens("secret", "someone-else", time.Hour)
	require.NoError(t, err)

	expired, err := NewTokens("secret", "artisan", time.Hour)
	require.NoError(t, err)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	wrongKey, _ := other.Issue("user-1")
	wrongIssuer, _ := foreign.Issue("user-1")
	stale, _ := expired.Issue("user-1")
	noSubject, _ := tokens.Issue("")
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "artisan",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"garbage":      "not-a-token",
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"expired":      stale,
		"no subject":   noSubject,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Parse(raw)
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestSession_Context(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithSession(context.Background(), Session{UserID: "user-1"})
	s, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-1", s.UserID)
}
