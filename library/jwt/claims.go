// Package jwt signs and verifies the bearer tokens presented to the drive API.
package jwt

import (
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"
)

// UserClaims is the payload carried by drive access tokens.
type UserClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Validate runs after the registered claims have been checked.
func (uc *UserClaims) Validate() error {
	if strings.TrimSpace(uc.Email) == "" {
		return errors.New("token has no email")
	}
	return nil
}

// JWT signs and parses HS256 tokens with one shared secret.
type JWT struct {
	secret []byte
}

// New builds a signer/verifier.
func New(secret []byte) (*JWT, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	return &JWT{secret: secret}, nil
}

// Sign issues a token for email that expires after ttl.
func (j *JWT) Sign(email, displayName string, ttl time.Duration, now time.Time) (string, error) {
	claims := &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:       email,
		DisplayName: displayName,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

// Parse verifies the signature and expiry of token.
func (j *JWT) Parse(token string) (*UserClaims, error) {
	claims := &UserClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "parse token")
	}
	if !parsed.Valid {
		return nil, errors.New("token invalid")
	}

	return claims, nil
}
