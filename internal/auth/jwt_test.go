package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
)

type userMap map[string]models.User

func (m userMap) GetUser(_ context.Context, userID string) (models.User, error) {
	user, ok := m[userID]
	if !ok {
		return models.User{}, apperr.NotFound("user not found")
	}
	return user, nil
}

func TestVerifyRoundTrip(t *testing.T) {
	users := userMap{"u1": {ID: "u1", Username: "alice"}}
	v := NewJWTVerifier("secret", users)

	token, err := v.Issue(models.Identity{UserID: "u1", Username: "stale-name"}, time.Minute)
	require.NoError(t, err)

	identity, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: "u1", Username: "alice"}, identity)
}

func TestVerifyRejectsBadCredentials(t *testing.T) {
	v := NewJWTVerifier("secret", userMap{"u1": {ID: "u1", Username: "alice"}})
	other := NewJWTVerifier("other-secret", nil)

	expired, err := v.Issue(models.Identity{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	forged, err := other.Issue(models.Identity{UserID: "u1"}, time.Minute)
	require.NoError(t, err)
	unknown, err := v.Issue(models.Identity{UserID: "ghost"}, time.Minute)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{ID: "u1"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"expired":   expired,
		"forged":    forged,
		"unknown":   unknown,
		"no expiry": noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			require.Error(t, err)
			assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc", ""))
	assert.Equal(t, "abc", BearerToken("bearer abc", "ignored"))
	assert.Equal(t, "", BearerToken("Basic abc", ""))
	assert.Equal(t, "xyz", BearerToken("", "xyz"))
	assert.Equal(t, "", BearerToken("", ""))
}
