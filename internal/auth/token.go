package auth

import (
	"errors"
	"fmt"

	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrMalformedToken is returned for cookie values that fail to decode or verify
var ErrMalformedToken = errors.New("malformed session token")

// SessionClaims is the signed envelope carried in the session cookie
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenCodec signs opaque session tokens into the cookie value and back.
// Expiry is decided by SessionManager, so claim time checks are skipped on decode.
type TokenCodec struct {
	secret []byte
	issuer string
}

// NewTokenCodec creates a new TokenCodec
func NewTokenCodec(secret, issuer string) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// Encode wraps the session token in an HS256 JWT
func (c *TokenCodec) Encode(session *models.Session) (string, error) {
	claims := &SessionClaims{
		SessionID: session.Token,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    c.issuer,
			Subject:   session.AccountIdentity,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and returns the session token inside
func (c *TokenCodec) Decode(value string) (string, error) {
	if value == "" {
		return "", ErrMalformedToken
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !token.Valid || claims.SessionID == "" {
		return "", ErrMalformedToken
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return "", ErrMalformedToken
	}

	return claims.SessionID, nil
}
