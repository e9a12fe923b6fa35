package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"librarylending/internal/models"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token body issued by the identity provider.
type Claims struct {
	IsStaff bool `json:"is_staff"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 token for the actor. Identity lives elsewhere; this
// exists for tooling and tests.
func Issue(secret string, actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		IsStaff: actor.IsStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse validates a bearer token (with or without the "Bearer " prefix) and
// returns the actor it names.
func Parse(secret, header string) (models.Actor, error) {
	var tokenStr string
	parts := strings.Fields(header)
	switch {
	case len(parts) == 1 && !strings.EqualFold(parts[0], "bearer"):
		tokenStr = parts[0]
	case len(parts) == 2 && strings.EqualFold(parts[0], "bearer"):
		tokenStr = parts[1]
	case len(parts) >= 2:
		return models.Actor{}, ErrInvalidToken
	}
	if tokenStr == "" {
		return models.Actor{}, ErrMissingToken
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return models.Actor{}, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	return models.Actor{UserID: userID, IsStaff: claims.IsStaff}, nil
}
