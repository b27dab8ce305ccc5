package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	t.Parallel()

	j, err := New([]byte("secret"))
	require.NoError(t, err)

	token, err := j.Sign("alice@example.com", "Alice", time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := j.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, "Alice", claims.DisplayName)
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	j, err := New([]byte("secret"))
	require.NoError(t, err)
	other, err := New([]byte("other"))
	require.NoError(t, err)

	expired, err := j.Sign("alice@example.com", "", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = j.Parse(expired)
	require.Error(t, err)

	foreign, err := other.Sign("alice@example.com", "", time.Hour, time.Now())
	require.NoError(t, err)
	_, err = j.Parse(foreign)
	require.Error(t, err)

	noEmail, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = j.Parse(noEmail)
	require.Error(t, err)

	_, err = New(nil)
	require.Error(t, err)
}
