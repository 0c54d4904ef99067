// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepository is the credential store: accounts and their profiles.
type AccountRepository interface {
	// Identity loads the revalidation view of an account (active flag and profile role).
	// A missing account yields errs.ErrNotFound; a missing profile yields RoleNone.
	Identity(ctx context.Context, id uuid.UUID) (model.Identity, error)
	// CredentialsByEmail loads the login view of an account.
	CredentialsByEmail(ctx context.Context, email string) (model.Credentials, error)
	// Create inserts an account and its profile in one transaction.
	Create(ctx context.Context, acc model.Account, prof model.Profile) error
	// UpdateUser applies an admin partial update to the profile and account.
	UpdateUser(ctx context.Context, id uuid.UUID, upd model.UserUpdate) error
	// Profile loads the profile of an account.
	Profile(ctx context.Context, id uuid.UUID) (model.Profile, error)
	// UpsertProfile creates or replaces self-service profile fields.
	UpsertProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) error
	// SetPasswordHash replaces the stored password hash.
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}
