package service

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
)

func TestCanModify_DecisionTable(t *testing.T) {
	tests := []struct {
		name    string
		role    model.Role
		active  bool
		isOwner bool
		allowed bool
	}{
		{"admin owner", model.RoleAdmin, true, true, true},
		{"admin other", model.RoleAdmin, true, false, true},
		{"operator owner", model.RoleOperator, true, true, true},
		{"operator other", model.RoleOperator, true, false, false},
		{"user owner", model.RoleUser, true, true, true},
		{"user other", model.RoleUser, true, false, false},
		{"inactive admin owner", model.RoleAdmin, false, true, false},
		{"inactive admin other", model.RoleAdmin, false, false, false},
		{"inactive operator owner", model.RoleOperator, false, true, false},
		{"inactive user other", model.RoleUser, false, false, false},
		{"no profile owner", model.RoleNone, true, true, false},
		{"no profile other", model.RoleNone, true, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			accounts := newFakeAccounts()
			events := &fakeEvents{}
			v := NewRevalidator(accounts, events)

			id := accounts.add("x@example.com", "x", tc.role, tc.active)
			owner := uuid.Must(uuid.NewV4())
			if tc.isOwner {
				owner = id
			}

			_, err := v.CanModify(context.Background(), "10.1.1.1", id, owner, "delete_file")
			if tc.allowed {
				require.NoError(t, err)
				require.Zero(t, events.count(model.EventUnauthorizedResourceAccess))
				return
			}
			require.ErrorIs(t, err, errs.ErrForbidden)
			require.Equal(t, 1, events.count(model.EventUnauthorizedResourceAccess))
			require.Equal(t, "Attempted: delete_file, Owner: "+owner.String(), events.last().details)
		})
	}
}

func TestCanModify_UnknownAccount(t *testing.T) {
	accounts := newFakeAccounts()
	events := &fakeEvents{}
	v := NewRevalidator(accounts, events)
	ghost := uuid.Must(uuid.NewV4())

	_, err := v.CanModify(context.Background(), "10.1.1.1", ghost, ghost, "update_group")
	require.ErrorIs(t, err, errs.ErrForbidden)
	require.Equal(t, 1, events.count(model.EventInvalidUserRevalidation))
	require.Equal(t, 1, events.count(model.EventUnauthorizedResourceAccess))
}

func TestRevalidator_DemotionTakesEffectImmediately(t *testing.T) {
	accounts := newFakeAccounts()
	events := &fakeEvents{}
	v := NewRevalidator(accounts, events)
	ctx := context.Background()
	id := accounts.add("boss@example.com", "x", model.RoleAdmin, true)

	ident, err := v.RequireAdmin(ctx, "10.2.2.2", id, "invite_user")
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, ident.Role)

	demoted := model.RoleUser
	require.NoError(t, accounts.UpdateUser(ctx, id, model.UserUpdate{Role: &demoted}))

	_, err = v.RequireAdmin(ctx, "10.2.2.2", id, "invite_user")
	require.ErrorIs(t, err, errs.ErrForbidden)
	require.Equal(t, 1, events.count(model.EventUnauthorizedAdminAccess))
	require.Equal(t, "Attempted: invite_user", events.last().details)
	require.Equal(t, id, *events.last().account)
}

func TestRevalidator_InactiveHasNoRole(t *testing.T) {
	accounts := newFakeAccounts()
	events := &fakeEvents{}
	v := NewRevalidator(accounts, events)
	id := accounts.add("old@example.com", "x", model.RoleAdmin, false)

	role, err := v.CurrentRole(context.Background(), "10.3.3.3", id)
	require.NoError(t, err)
	require.Equal(t, model.RoleNone, role)
	require.Equal(t, 1, events.count(model.EventInactiveUserAccess))
}

func TestRevalidator_StoreFailureIsNotADenial(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.identityErr = errors.New("db down")
	events := &fakeEvents{}
	v := NewRevalidator(accounts, events)

	_, err := v.RequireAdmin(context.Background(), "10.4.4.4", uuid.Must(uuid.NewV4()), "update_user")
	require.Error(t, err)
	require.False(t, errors.Is(err, errs.ErrForbidden))
	require.Empty(t, events.all)
}

func TestRequireRole(t *testing.T) {
	accounts := newFakeAccounts()
	events := &fakeEvents{}
	v := NewRevalidator(accounts, events)
	ctx := context.Background()
	op := accounts.add("op@example.com", "x", model.RoleOperator, true)
	usr := accounts.add("usr@example.com", "x", model.RoleUser, true)

	ident, err := v.RequireRole(ctx, "10.5.5.5", op, "upload_file", model.RoleOperator, model.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, op, ident.AccountID)

	_, err = v.RequireRole(ctx, "10.5.5.5", usr, "upload_file", model.RoleOperator, model.RoleAdmin)
	require.ErrorIs(t, err, errs.ErrForbidden)
	require.Equal(t, "Attempted: upload_file, Role: user", events.last().details)
}

func TestAllowModify_MissingResource(t *testing.T) {
	accounts := newFakeAccounts()
	events := &fakeEvents{}
	v := NewRevalidator(accounts, events)
	ctx := context.Background()

	admin, err := v.Identity(ctx, "10.1.1.1", accounts.add("a@example.com", "x", model.RoleAdmin, true))
	require.NoError(t, err)
	user, err := v.Identity(ctx, "10.1.1.1", accounts.add("u@example.com", "x", model.RoleUser, true))
	require.NoError(t, err)

	require.NoError(t, v.AllowModify(ctx, "10.1.1.1", admin, uuid.Nil, "delete_file"))

	err = v.AllowModify(ctx, "10.1.1.1", user, uuid.Nil, "delete_file")
	require.ErrorIs(t, err, errs.ErrForbidden)
	require.Equal(t, "Attempted: delete_file, Owner: unknown", events.last().details)
}
