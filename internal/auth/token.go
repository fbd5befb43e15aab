// Package auth verifies bearer tokens issued by the identity provider and carries the
// authenticated user id through request contexts.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken indicates the token failed verification.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Verifier validates HS256 tokens and extracts the subject as the user id.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier constructs a Verifier. When issuer is non-empty the iss claim must match it.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret must not be empty")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Authenticate verifies token and returns its subject.
func (v *Verifier) Authenticate(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Issuer mints tokens for local development. Production tokens come from the identity provider.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration

	// NowFunc overrides the clock used for iat and exp.
	NowFunc func() time.Time
}

// NewIssuer constructs an Issuer. A non-positive ttl issues tokens without expiry.
func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret must not be empty")
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue signs a token whose subject is userID.
func (i *Issuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id must be provided")
	}

	now := time.Now().UTC()
	if i.NowFunc != nil {
		now = i.NowFunc().UTC()
	}

	claims := jwt.RegisteredClaims{
		Subject:  userID,
		Issuer:   i.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
