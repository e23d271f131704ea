package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is what the credential issuer vouches for. The room engine treats it as opaque.
type Identity struct {
	UserId      string
	DisplayName string
}

type claims struct {
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

type service struct {
	secret []byte
	clock  clockwork.Clock
}

func NewService(secret string, clock clockwork.Clock) *service {
	return &service{
		secret: []byte(secret),
		clock:  clock,
	}
}

// GenerateToken issues an HS256 token. ttl <= 0 means the token never expires.
func (s service) GenerateToken(identity Identity, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	c := claims{
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity.UserId,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return token, nil
}

func (s service) ParseToken(tokenString string) (Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserId:      c.Subject,
		DisplayName: c.DisplayName,
	}, nil
}
