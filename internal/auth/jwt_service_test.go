package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: "  "})
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret:         "super-secret",
		Issuer:         "smartpost",
		AccessTokenTTL: time.Hour,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken("student")
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)
	require.Equal(t, "Bearer", token.TokenType)
	require.Equal(t, current.Add(time.Hour), token.ExpiresAt)

	claims, err := svc.ValidateAccessToken(token.Token)
	require.NoError(t, err)
	require.Equal(t, "student", claims.UserID)
	require.Equal(t, "student", claims.Subject)
	require.Equal(t, "smartpost", claims.Issuer)
}

func TestGenerateAccessTokenRequiresUser(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	_, err = svc.GenerateAccessToken(" ")
	require.Error(t, err)
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret:         "secret",
		AccessTokenTTL: time.Minute,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken("student")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessTokenRejectsForeignTokens(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "smartpost"})
	require.NoError(t, err)

	other, err := NewJWTService(JWTConfig{Secret: "other-secret", Issuer: "smartpost"})
	require.NoError(t, err)
	foreign, err := other.GenerateAccessToken("student")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(foreign.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "elsewhere"})
	require.NoError(t, err)
	token, err := wrongIssuer.GenerateAccessToken("student")
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(token.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"uid": "student"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateAccessToken("")
	require.ErrorIs(t, err, ErrInvalidToken)
}
