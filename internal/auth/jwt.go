package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
)

const issuer = "chat-core"

// Verifier turns a bearer credential into an identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (models.Identity, error)
}

// UserLookup confirms that a token subject still exists.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
}

// Claims is the token payload.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	users  UserLookup
}

// NewJWTVerifier constructs a JWTVerifier. users may be nil, in which case
// the username from the token is trusted.
func NewJWTVerifier(secret string, users UserLookup) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), users: users}
}

// Verify validates the token and resolves the identity.
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (models.Identity, error) {
	if credential == "" {
		return models.Identity{}, apperr.Auth(errors.New("missing credential"))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Identity{}, apperr.Auth(err)
	}
	if !token.Valid || claims.ID == "" {
		return models.Identity{}, apperr.Auth(errors.New("invalid token"))
	}

	identity := models.Identity{UserID: claims.ID, Username: claims.Username}
	if v.users == nil {
		return identity, nil
	}
	user, err := v.users.GetUser(ctx, claims.ID)
	if err != nil {
		return models.Identity{}, apperr.Auth(fmt.Errorf("lookup user: %w", err))
	}
	identity.Username = user.Username
	return identity, nil
}

// Issue signs a token for identity valid for ttl.
func (v *JWTVerifier) Issue(identity models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:       identity.UserID,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}

// BearerToken extracts the credential from an Authorization header, falling
// back to a raw token query value.
func BearerToken(header, query string) string {
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(query)
}
