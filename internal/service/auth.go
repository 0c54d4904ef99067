// Package service contains application services for authentication,
// authorization checks, accounts and owned resources.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/arquivo-manager/internal/crypto"
	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/and161185/arquivo-manager/internal/repository"
)

// MinPasswordLen is enforced on registration.
const MinPasswordLen = 8

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(accountID uuid.UUID, email string, role model.Role) (model.Tokens, error)
}

// AuthService defines login, self sign-up and identity lookup.
type AuthService interface {
	// Login rate-limits by client address, verifies credentials and issues a token.
	Login(ctx context.Context, email, password, ip string) (model.Tokens, model.Identity, error)
	// Register creates an active account with role "user".
	Register(ctx context.Context, email, password, fullName string) (uuid.UUID, error)
	// Whoami returns the stored identity of the token subject.
	Whoami(ctx context.Context, ip string, id uuid.UUID) (model.Identity, error)
}

// AuthServiceImpl implements AuthService.
type AuthServiceImpl struct {
	accounts repository.AccountRepository
	tokens   TokenIssuer
	throttle *Throttler
	reval    *Revalidator
	events   EventRecorder
	log      *zap.Logger
	verify   func(password, encoded string) bool
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(accounts repository.AccountRepository, tokens TokenIssuer, throttle *Throttler,
	reval *Revalidator, events EventRecorder, log *zap.Logger) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{
		accounts: accounts, tokens: tokens, throttle: throttle, reval: reval, events: events, log: log,
		verify: pkgcrypto.VerifyPassword,
	}
}

var errBadCredentials = fmt.Errorf("%w: invalid credentials", errs.ErrUnauthenticated)

// Login applies the login budget before touching the credential store, so a
// throttled attempt never reaches it.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Tokens, model.Identity, error) {
	if err := s.throttle.Login(ctx, ip); err != nil {
		return model.Tokens{}, model.Identity{}, err
	}

	email = normalizeEmail(email)
	if email == "" || password == "" {
		s.events.Record(ctx, model.EventInvalidLoginAttempt, ip, nil, "Missing email or password")
		return model.Tokens{}, model.Identity{}, fmt.Errorf("%w: email and password are required", errs.ErrInvalidInput)
	}

	c, err := s.accounts.CredentialsByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		// Unknown emails pay for a hash too, so timing does not reveal them.
		s.verify(password, pkgcrypto.DummyHash())
		s.events.Record(ctx, model.EventFailedLogin, ip, nil, "Unknown email: "+email)
		return model.Tokens{}, model.Identity{}, errBadCredentials
	}
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	id := c.AccountID
	if !s.verify(password, c.PasswordHash) {
		s.events.Record(ctx, model.EventFailedLogin, ip, &id, "Invalid password")
		return model.Tokens{}, model.Identity{}, errBadCredentials
	}
	if !c.Active {
		s.events.Record(ctx, model.EventFailedLogin, ip, &id, "Inactive account")
		return model.Tokens{}, model.Identity{}, errBadCredentials
	}

	tok, err := s.tokens.Issue(c.AccountID, c.Email, c.Role)
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	if pkgcrypto.NeedsRehash(c.PasswordHash) {
		s.upgradeHash(ctx, id, password)
	}
	s.events.Record(ctx, model.EventSuccessfulLogin, ip, &id, "")

	return tok, model.Identity{
		AccountID: c.AccountID,
		Email:     c.Email,
		FullName:  c.FullName,
		Active:    true,
		Role:      c.Role,
	}, nil
}

// upgradeHash replaces a legacy bcrypt hash after a successful login. Best-effort.
func (s *AuthServiceImpl) upgradeHash(ctx context.Context, id uuid.UUID, password string) {
	hash, err := pkgcrypto.HashPassword(password)
	if err == nil {
		err = s.accounts.SetPasswordHash(ctx, id, hash)
	}
	if err != nil {
		s.log.Warn("password rehash failed", zap.String("account_id", id.String()), zap.Error(err))
	}
}

// Register creates an account and a "user" profile.
func (s *AuthServiceImpl) Register(ctx context.Context, email, password, fullName string) (uuid.UUID, error) {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if email == "" || password == "" || fullName == "" {
		return uuid.Nil, fmt.Errorf("%w: email, password and full name are required", errs.ErrInvalidInput)
	}
	if err := validateEmail(email); err != nil {
		return uuid.Nil, err
	}
	if len(password) < MinPasswordLen {
		return uuid.Nil, fmt.Errorf("%w: password must have at least %d characters", errs.ErrInvalidInput, MinPasswordLen)
	}
	return createAccount(ctx, s.accounts, email, password, fullName, model.RoleUser, nil)
}

// Whoami maps the revalidated identity: unknown accounts are unauthenticated,
// inactive ones forbidden.
func (s *AuthServiceImpl) Whoami(ctx context.Context, ip string, id uuid.UUID) (model.Identity, error) {
	ident, err := s.reval.Identity(ctx, ip, id)
	if err != nil {
		return model.Identity{}, err
	}
	if ident.Email == "" {
		return model.Identity{}, fmt.Errorf("%w: unknown account", errs.ErrUnauthenticated)
	}
	if !ident.Active {
		return model.Identity{}, fmt.Errorf("%w: account is inactive", errs.ErrForbidden)
	}
	return ident, nil
}

func createAccount(ctx context.Context, accounts repository.AccountRepository, email, password, fullName string,
	role model.Role, whatsapp *string) (uuid.UUID, error) {
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return uuid.Nil, err
	}
	aid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	pid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	acc := model.Account{ID: aid, Email: email, PasswordHash: hash, Active: true}
	prof := model.Profile{
		ID:                   pid,
		AccountID:            aid,
		FullName:             fullName,
		Role:                 role,
		WhatsApp:             whatsapp,
		ReceiveNotifications: true,
	}
	if err := accounts.Create(ctx, acc, prof); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return uuid.Nil, fmt.Errorf("%w: email already registered", errs.ErrAlreadyExists)
		}
		return uuid.Nil, err
	}
	return aid, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email", errs.ErrInvalidInput)
	}
	return nil
}
