package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := Sign(secret, "u1", "Alice", time.Hour)
	require.NoError(t, err)

	claims, err := Verify(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "Alice", claims.DisplayName)

	_, err = Verify([]byte("other"), tok)
	require.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := Sign(secret, "u1", "", -time.Minute)
	require.NoError(t, err)

	_, err = Verify(secret, tok)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestCredentialValue(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"abc", "abc"},
		{"  abc ", "abc"},
		{"user=abc", "abc"},
		{"user=abc; theme=dark", "abc"},
		{"abc=", "abc="},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CredentialValue(tc.in), tc.in)
	}
}

func TestInspect(t *testing.T) {
	secret := []byte("game-server")

	t.Run("opaque", func(t *testing.T) {
		id, err := Inspect("user=4f2a9c")
		require.NoError(t, err)
		assert.True(t, id.Opaque)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Inspect("   ")
		require.ErrorIs(t, err, ErrEmptyCredential)
	})

	t.Run("jwt", func(t *testing.T) {
		tok, err := Sign(secret, "7", "bob", time.Hour)
		require.NoError(t, err)

		id, err := Inspect("user=" + tok)
		require.NoError(t, err)
		assert.False(t, id.Opaque)
		assert.Equal(t, "7", id.UserID)
		assert.Equal(t, "bob", id.Name)
		assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt, time.Minute)
	})

	t.Run("expired jwt", func(t *testing.T) {
		tok, err := Sign(secret, "7", "bob", -time.Hour)
		require.NoError(t, err)

		_, err = Inspect(tok)
		require.ErrorIs(t, err, ErrCredentialExpired)
	})

	t.Run("verified", func(t *testing.T) {
		tok, err := Sign(secret, "7", "bob", time.Hour)
		require.NoError(t, err)

		claims, err := VerifyCredential(secret, "user="+tok)
		require.NoError(t, err)
		assert.Equal(t, "7", claims.UserID)

		_, err = VerifyCredential([]byte("wrong"), tok)
		require.Error(t, err)
	})
}
