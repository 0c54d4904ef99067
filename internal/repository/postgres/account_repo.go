package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

// Identity reads the active flag and the profile role of an account.
func (r *AccountRepo) Identity(ctx context.Context, id uuid.UUID) (model.Identity, error) {
	const q = `
SELECT u.id, u.email, u.active, COALESCE(p.full_name, ''), COALESCE(p.role, '')
FROM users u LEFT JOIN profiles p ON p.user_id = u.id
WHERE u.id=$1`
	var (
		ident model.Identity
		role  string
	)
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&ident.AccountID, &ident.Email, &ident.Active, &ident.FullName, &role)
	if err != nil {
		return model.Identity{}, notFound(err)
	}
	ident.Role = model.Role(role)
	return ident, nil
}

// CredentialsByEmail reads the login view of an account.
func (r *AccountRepo) CredentialsByEmail(ctx context.Context, email string) (model.Credentials, error) {
	const q = `
SELECT u.id, u.email, u.password_hash, u.active, COALESCE(p.full_name, ''), COALESCE(p.role, '')
FROM users u LEFT JOIN profiles p ON p.user_id = u.id
WHERE u.email=$1`
	var (
		c    model.Credentials
		role string
	)
	err := r.db.Pool.QueryRow(ctx, q, email).Scan(&c.AccountID, &c.Email, &c.PasswordHash, &c.Active, &c.FullName, &role)
	if err != nil {
		return model.Credentials{}, notFound(err)
	}
	c.Role = model.Role(role)
	return c, nil
}

// Create inserts the account and its profile atomically.
func (r *AccountRepo) Create(ctx context.Context, acc model.Account, prof model.Profile) error {
	const insUser = `
INSERT INTO users (id, email, password_hash, active)
VALUES ($1, $2, $3, $4)`
	const insProfile = `
INSERT INTO profiles (id, user_id, full_name, role, whatsapp, receive_notifications)
VALUES ($1, $2, $3, $4, $5, $6)`
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insUser, acc.ID, acc.Email, acc.PasswordHash, acc.Active); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insProfile, prof.ID, acc.ID, prof.FullName, string(prof.Role), prof.WhatsApp, prof.ReceiveNotifications)
		return err
	})
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UpdateUser applies the non-nil fields of upd. Each field maps to a fixed column.
// An empty WhatsApp clears the stored number.
func (r *AccountRepo) UpdateUser(ctx context.Context, id uuid.UUID, upd model.UserUpdate) error {
	const updProfile = `
UPDATE profiles
SET full_name = COALESCE($2, full_name),
    role = COALESCE($3, role),
    whatsapp = CASE WHEN $4::text IS NULL THEN whatsapp ELSE NULLIF($4::text, '') END,
    updated_at = now()
WHERE user_id=$1`
	const updActive = `UPDATE users SET active=$2 WHERE id=$1`

	var role *string
	if upd.Role != nil {
		s := string(*upd.Role)
		role = &s
	}
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updProfile, id, upd.FullName, role, upd.WhatsApp)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		if upd.Active != nil {
			if _, err := tx.Exec(ctx, updActive, id, *upd.Active); err != nil {
				return err
			}
		}
		return nil
	})
}

// Profile reads the profile row of an account.
func (r *AccountRepo) Profile(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	const q = `
SELECT id, user_id, full_name, role, whatsapp, receive_notifications, created_at, updated_at
FROM profiles WHERE user_id=$1`
	var (
		p    model.Profile
		role string
	)
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.AccountID, &p.FullName, &role, &p.WhatsApp,
		&p.ReceiveNotifications, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Profile{}, notFound(err)
	}
	p.Role = model.Role(role)
	return p, nil
}

// UpsertProfile creates the profile with role "user" or updates its self-service fields.
// The role column is never touched on update.
func (r *AccountRepo) UpsertProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) error {
	const q = `
INSERT INTO profiles (id, user_id, full_name, role, whatsapp, receive_notifications)
VALUES ($1, $2, $3, 'user', $4, $5)
ON CONFLICT (user_id) DO UPDATE
SET full_name = EXCLUDED.full_name,
    whatsapp = EXCLUDED.whatsapp,
    receive_notifications = EXCLUDED.receive_notifications,
    updated_at = now()`
	pid, err := uuid.NewV4()
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, q, pid, id, upd.FullName, upd.WhatsApp, upd.ReceiveNotifications)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	return err
}

// SetPasswordHash stores a new password hash.
func (r *AccountRepo) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `UPDATE users SET password_hash=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// notFound maps pgx.ErrNoRows to errs.ErrNotFound and wraps everything else.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	return fmt.Errorf("postgres: %w", err)
}
