package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/and161185/arquivo-manager/internal/crypto"
	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/and161185/arquivo-manager/internal/repository"
)

const maxNameLen = 200

// AccountService covers admin account management and self-service profiles.
// Callers are authorized before reaching it.
type AccountService interface {
	// Invite creates an account with a temporary password returned once.
	Invite(ctx context.Context, actor model.Actor, email, fullName string, role model.Role, whatsapp *string) (model.Invitation, error)
	// UpdateUser applies an admin partial update to another account.
	UpdateUser(ctx context.Context, actor model.Actor, target uuid.UUID, upd model.UserUpdate) error
	// Profile returns the caller's profile.
	Profile(ctx context.Context, id uuid.UUID) (model.Profile, error)
	// UpdateOwnProfile changes the caller's self-service profile fields.
	UpdateOwnProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) error
}

// AccountServiceImpl implements AccountService.
type AccountServiceImpl struct {
	accounts repository.AccountRepository
	events   EventRecorder
}

// NewAccountService constructs AccountService.
func NewAccountService(accounts repository.AccountRepository, events EventRecorder) *AccountServiceImpl {
	return &AccountServiceImpl{accounts: accounts, events: events}
}

// Invite creates an active account with a random 16 hex char password.
func (s *AccountServiceImpl) Invite(ctx context.Context, actor model.Actor, email, fullName string, role model.Role, whatsapp *string) (model.Invitation, error) {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if email == "" || fullName == "" {
		return model.Invitation{}, fmt.Errorf("%w: email and full name are required", errs.ErrInvalidInput)
	}
	if err := validateEmail(email); err != nil {
		return model.Invitation{}, err
	}
	if err := validateName(fullName); err != nil {
		return model.Invitation{}, err
	}
	if role == model.RoleNone {
		role = model.RoleUser
	}
	if !role.Valid() {
		return model.Invitation{}, fmt.Errorf("%w: unknown role %q", errs.ErrInvalidInput, role)
	}

	temp, err := pkgcrypto.TempPassword()
	if err != nil {
		return model.Invitation{}, err
	}
	id, err := createAccount(ctx, s.accounts, email, temp, fullName, role, trimmed(whatsapp))
	if err != nil {
		return model.Invitation{}, err
	}
	return model.Invitation{AccountID: id, Email: email, TempPassword: temp}, nil
}

// UpdateUser validates and applies upd, then records user_updated.
func (s *AccountServiceImpl) UpdateUser(ctx context.Context, actor model.Actor, target uuid.UUID, upd model.UserUpdate) error {
	if target == uuid.Nil {
		return fmt.Errorf("%w: user id is required", errs.ErrInvalidInput)
	}
	if upd.Empty() {
		return fmt.Errorf("%w: nothing to update", errs.ErrInvalidInput)
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", errs.ErrInvalidInput, *upd.Role)
	}
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if err := validateName(name); err != nil {
			return err
		}
		upd.FullName = &name
	}
	if upd.WhatsApp != nil {
		// Blank clears the number; nil leaves it alone.
		wa := strings.TrimSpace(*upd.WhatsApp)
		upd.WhatsApp = &wa
	}

	if err := s.accounts.UpdateUser(ctx, target, upd); err != nil {
		return err
	}
	id := actor.AccountID
	s.events.Record(ctx, model.EventUserUpdated, actor.IP, &id, "Updated user: "+target.String()+describeUpdate(upd))
	return nil
}

// Profile returns the stored profile.
func (s *AccountServiceImpl) Profile(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	return s.accounts.Profile(ctx, id)
}

// UpdateOwnProfile upserts name, whatsapp and the notification flag. The role is never changed here.
func (s *AccountServiceImpl) UpdateOwnProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) error {
	upd.FullName = strings.TrimSpace(upd.FullName)
	if err := validateName(upd.FullName); err != nil {
		return err
	}
	upd.WhatsApp = trimmed(upd.WhatsApp)
	return s.accounts.UpsertProfile(ctx, id, upd)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: full name is required", errs.ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return fmt.Errorf("%w: full name is too long", errs.ErrInvalidInput)
	}
	return nil
}

// trimmed returns nil for blank strings.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func describeUpdate(upd model.UserUpdate) string {
	var parts []string
	if upd.FullName != nil {
		parts = append(parts, "full_name")
	}
	if upd.Role != nil {
		parts = append(parts, "role="+string(*upd.Role))
	}
	if upd.WhatsApp != nil {
		parts = append(parts, "whatsapp")
	}
	if upd.Active != nil {
		parts = append(parts, fmt.Sprintf("active=%t", *upd.Active))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// Seed creates an active account unless the email is already registered.
// It reports whether an account was created.
func (s *AccountServiceImpl) Seed(ctx context.Context, email, password, fullName string, role model.Role) (bool, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return false, err
	}
	if !role.Valid() {
		return false, fmt.Errorf("%w: unknown role %q", errs.ErrInvalidInput, role)
	}
	if len(password) < MinPasswordLen {
		return false, fmt.Errorf("%w: password must have at least %d characters", errs.ErrInvalidInput, MinPasswordLen)
	}
	if fullName = strings.TrimSpace(fullName); fullName == "" {
		fullName = email
	}
	_, err := createAccount(ctx, s.accounts, email, password, fullName, role, nil)
	if errors.Is(err, errs.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
