package auth

import (
	"testing"
	"time"

	"scancodes/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWT() *config.JWTConfig {
	return &config.JWTConfig{AccessSecret: "s3cret", AccessExpiry: time.Minute, Issuer: "scancodes"}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateAccessToken(cfg, 42, "ada@example.com", "ADMIN")
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, tok)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)
}

func TestParseAccessToken_Rejects(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateAccessToken(cfg, 1, "a@example.com", "CUSTOMER")
	require.NoError(t, err)

	other := *cfg
	other.AccessSecret = "different"
	_, err = ParseAccessToken(&other, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := *cfg
	wrongIssuer.Issuer = "someone-else"
	_, err = ParseAccessToken(&wrongIssuer, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := *cfg
	expired.AccessExpiry = -time.Minute
	old, err := GenerateAccessToken(&expired, 1, "a@example.com", "CUSTOMER")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseAccessToken(cfg, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
