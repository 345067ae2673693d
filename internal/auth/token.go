// Package auth verifies bearer credentials and resolves them to users.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	defaultTokenTTL = 24 * time.Hour
	defaultIssuer   = "vidhub"
)

var (
	ErrSecretRequired = errors.New("token secret is required")
	ErrSubjectMissing = errors.New("token carries no subject")
	ErrExpiryMissing  = errors.New("token carries no expiry")
)

// Config holds the signing parameters for access tokens.
type Config struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// Claims is the access token payload. The subject travels in the _id claim;
// the registered sub claim is accepted when _id is absent.
type Claims struct {
	UserID string `json:"_id,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) subject() string {
	if id := strings.TrimSpace(c.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(c.Subject)
}

// TokenVerifier signs and verifies HS256 access tokens.
type TokenVerifier struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

type VerifierOption func(*TokenVerifier)

// WithClock overrides the time source used when issuing tokens.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

func NewTokenVerifier(cfg Config, opts ...VerifierOption) (*TokenVerifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrSecretRequired
	}
	verifier := &TokenVerifier{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		issuer: strings.TrimSpace(cfg.Issuer),
		now:    time.Now,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
	if verifier.ttl <= 0 {
		verifier.ttl = defaultTokenTTL
	}
	if verifier.issuer == "" {
		verifier.issuer = defaultIssuer
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier, nil
}

// Issue mints a signed token for userID and reports when it expires.
func (v *TokenVerifier) Issue(userID string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, ErrSubjectMissing
	}
	issuedAt := v.now().UTC()
	expiresAt := issuedAt.Add(v.ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of raw and returns its subject.
func (v *TokenVerifier) Verify(raw string) (string, error) {
	var claims Claims
	token, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("verify token: token invalid")
	}
	if claims.ExpiresAt == nil {
		return "", ErrExpiryMissing
	}
	subject := claims.subject()
	if subject == "" {
		return "", ErrSubjectMissing
	}
	return subject, nil
}
