package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL mirrors the platform's long-standing session length.
const DefaultTokenTTL = 90 * 24 * time.Hour

// TokenClaims is the verified content of an access token.
type TokenClaims struct {
	PrincipalID string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenCodec issues and verifies HS256 access tokens. Verification is
// stateless: the signature and registered claims are the only inputs.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenCodecOption configures TokenCodec.
type TokenCodecOption func(*TokenCodec)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(d time.Duration) TokenCodecOption {
	return func(c *TokenCodec) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithTokenNow sets a custom time function for testing.
func WithTokenNow(fn func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec creates a codec signing with the given secret.
func NewTokenCodec(secret []byte, opts ...TokenCodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: token codec requires a signing secret")
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Issue mints a signed token for the principal with the configured TTL.
func (c *TokenCodec) Issue(principalID string) (string, error) {
	if principalID == "" {
		return "", fmt.Errorf("%w: empty principal id", ErrValidation)
	}
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   principalID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return raw, nil
}

// Verify checks signature, structure, and expiry. Every failure collapses to
// ErrInvalidToken so callers cannot leak why a token was rejected.
func (c *TokenCodec) Verify(raw string) (TokenClaims, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return TokenClaims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return TokenClaims{}, ErrInvalidToken
	}
	return TokenClaims{
		PrincipalID: claims.Subject,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
