package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("user-1", 7, secret, time.Hour)
	require.NoError(t, err)

	claims, err := VerifyToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, 7, claims.Permissions)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("user-1", 7, secret, time.Hour)
	require.NoError(t, err)

	_, err = VerifyToken(token, []byte("other-secret"))
	require.Error(t, err)
}

func TestVerifyToken_Expired(t *testing.T) {
	token, err := GenerateToken("user-1", 7, secret, -time.Minute)
	require.NoError(t, err)

	_, err = VerifyToken(token, secret)
	require.Error(t, err)
}

func TestVerifyToken_Garbage(t *testing.T) {
	_, err := VerifyToken("not-a-token", secret)
	require.Error(t, err)
}
