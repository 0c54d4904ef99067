package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/and161185/arquivo-manager/internal/repository"
)

// EventRecorder appends security events. Implementations never fail the caller.
type EventRecorder interface {
	Record(ctx context.Context, typ model.EventType, ip string, accountID *uuid.UUID, details string)
}

// Revalidator derives the authoritative role of an account from the credential
// store on every call. Role claims carried by tokens are never consulted.
type Revalidator struct {
	accounts repository.AccountRepository
	events   EventRecorder
}

// NewRevalidator constructs a Revalidator.
func NewRevalidator(accounts repository.AccountRepository, events EventRecorder) *Revalidator {
	return &Revalidator{accounts: accounts, events: events}
}

// Identity loads the account and reports whether it may act at all.
// Unknown and inactive accounts get RoleNone and a security event; store
// failures are returned as errors.
func (v *Revalidator) Identity(ctx context.Context, ip string, id uuid.UUID) (model.Identity, error) {
	ident, err := v.accounts.Identity(ctx, id)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		v.events.Record(ctx, model.EventInvalidUserRevalidation, ip, &id, "User ID not found during revalidation")
		return model.Identity{AccountID: id, Role: model.RoleNone}, nil
	case err != nil:
		return model.Identity{}, fmt.Errorf("revalidate %s: %w", id, err)
	}
	if !ident.Active {
		v.events.Record(ctx, model.EventInactiveUserAccess, ip, &id, "Inactive user attempted access")
		ident.Role = model.RoleNone
		return ident, nil
	}
	if !ident.Role.Valid() {
		ident.Role = model.RoleNone
	}
	return ident, nil
}

// CurrentRole returns the role stored on the profile, or RoleNone for unknown
// and inactive accounts.
func (v *Revalidator) CurrentRole(ctx context.Context, ip string, id uuid.UUID) (model.Role, error) {
	ident, err := v.Identity(ctx, ip, id)
	if err != nil {
		return model.RoleNone, err
	}
	return ident.Role, nil
}

// RequireAdmin returns the revalidated identity of an active admin, or
// errs.ErrForbidden recorded as unauthorized_admin_access.
func (v *Revalidator) RequireAdmin(ctx context.Context, ip string, id uuid.UUID, action string) (model.Identity, error) {
	ident, err := v.Identity(ctx, ip, id)
	if err != nil {
		return model.Identity{}, err
	}
	if ident.Role != model.RoleAdmin {
		v.events.Record(ctx, model.EventUnauthorizedAdminAccess, ip, &id, "Attempted: "+action)
		return model.Identity{}, fmt.Errorf("%w: admin privileges required", errs.ErrForbidden)
	}
	return ident, nil
}

// RequireRole admits active accounts whose stored role is one of allowed.
// Denials are recorded as unauthorized_resource_access.
func (v *Revalidator) RequireRole(ctx context.Context, ip string, id uuid.UUID, action string, allowed ...model.Role) (model.Identity, error) {
	ident, err := v.Identity(ctx, ip, id)
	if err != nil {
		return model.Identity{}, err
	}
	if ident.Role != model.RoleNone {
		for _, r := range allowed {
			if ident.Role == r {
				return ident, nil
			}
		}
	}
	v.events.Record(ctx, model.EventUnauthorizedResourceAccess, ip, &id,
		fmt.Sprintf("Attempted: %s, Role: %s", action, roleName(ident.Role)))
	return model.Identity{}, fmt.Errorf("%w: insufficient role", errs.ErrForbidden)
}

// CanModify admits an active admin or the active owner of the resource.
// Anyone else is recorded as unauthorized_resource_access and gets
// errs.ErrForbidden.
func (v *Revalidator) CanModify(ctx context.Context, ip string, id, owner uuid.UUID, action string) (model.Identity, error) {
	ident, err := v.Identity(ctx, ip, id)
	if err != nil {
		return model.Identity{}, err
	}
	if err := v.AllowModify(ctx, ip, ident, owner, action); err != nil {
		return model.Identity{}, err
	}
	return ident, nil
}

// AllowModify is CanModify for an identity already loaded by Identity.
// A uuid.Nil owner stands for a resource that does not exist; only admins
// get past it.
func (v *Revalidator) AllowModify(ctx context.Context, ip string, ident model.Identity, owner uuid.UUID, action string) error {
	if ident.Role == model.RoleAdmin || (ident.Role != model.RoleNone && owner != uuid.Nil && ident.AccountID == owner) {
		return nil
	}
	id := ident.AccountID
	v.events.Record(ctx, model.EventUnauthorizedResourceAccess, ip, &id,
		fmt.Sprintf("Attempted: %s, Owner: %s", action, ownerName(owner)))
	return fmt.Errorf("%w: not allowed to perform this action", errs.ErrForbidden)
}

func ownerName(owner uuid.UUID) string {
	if owner == uuid.Nil {
		return "unknown"
	}
	return owner.String()
}

func roleName(r model.Role) string {
	if r == model.RoleNone {
		return "none"
	}
	return string(r)
}
