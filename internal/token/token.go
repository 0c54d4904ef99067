// Package token issues and validates signed, time-bound session tokens.
//
// Tokens are HS256 JWTs carrying the account id (sub), email and a role
// snapshot. The role claim is advisory: authorization always revalidates the
// role against the credential store.
package token

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/arquivo-manager/internal/model"
)

const (
	// Issuer and Audience are pinned on issuance and checked on validation.
	Issuer   = "arquivo-manager"
	Audience = "arquivo-manager-users"

	// DefaultTTL is the fixed session lifetime.
	DefaultTTL = 24 * time.Hour

	// MinSecretLen is the minimum accepted HMAC key length in bytes.
	MinSecretLen = 32
)

var (
	// ErrInvalidToken is returned for every validation failure; callers never see the cause.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned by NewService for short signing keys.
	ErrWeakSecret = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLen)
)

type sessionClaims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and verifies session tokens with a shared secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a token service; the secret must be high-entropy.
func NewService(secret []byte, opts ...Option) (*Service, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	s := &Service{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue signs a token for the account with issued_at = now and expires_at = now + TTL.
func (s *Service) Issue(accountID uuid.UUID, email string, role model.Role) (model.Tokens, error) {
	if accountID == uuid.Nil {
		return model.Tokens{}, errors.New("token: empty account id")
	}
	now := s.now()
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(s.ttl))
	claims := sessionClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			Subject:   accountID.String(),
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("sign token: %w", err)
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp.Time}, nil
}

// Validate verifies signature, issuer, audience and expiry and returns the claims.
// A token is invalid at or after its expiry instant.
func (s *Service) Validate(raw string) (model.Claims, error) {
	if raw == "" {
		return model.Claims{}, ErrInvalidToken
	}
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return model.Claims{}, ErrInvalidToken
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return model.Claims{}, ErrInvalidToken
	}
	if claims.IssuedAt == nil {
		return model.Claims{}, ErrInvalidToken
	}
	return model.Claims{
		AccountID: id,
		Email:     claims.Email,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

const bearerPrefix = "Bearer "

// ExtractBearer returns the token from "Authorization: Bearer <token>".
// A missing or malformed header yields ok=false, not an error, so callers can
// tell "no credential" apart from "bad credential".
func ExtractBearer(h http.Header) (string, bool) {
	v := h.Get("Authorization")
	if !strings.HasPrefix(v, bearerPrefix) {
		return "", false
	}
	tok := v[len(bearerPrefix):]
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return "", false
	}
	return tok, true
}
