package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

const identitySQL = `SELECT u.id, u.email, u.active, COALESCE\(p.full_name, ''\), COALESCE\(p.role, ''\) FROM users u LEFT JOIN profiles p ON p.user_id = u.id WHERE u.id=\$1`

func TestAccountRepo_Identity(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(identitySQL).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "active", "full_name", "role"}).
			AddRow(id, "a@x.io", true, "Ana", "operator"))
	got, err := r.Identity(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.Identity{AccountID: id, Email: "a@x.io", FullName: "Ana", Active: true, Role: model.RoleOperator}, got)

	// account without profile
	mock.ExpectQuery(identitySQL).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "active", "full_name", "role"}).
			AddRow(id, "a@x.io", true, "", ""))
	got, err = r.Identity(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.RoleNone, got.Role)

	mock.ExpectQuery(identitySQL).WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err = r.Identity(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)

	boom := errors.New("conn reset")
	mock.ExpectQuery(identitySQL).WithArgs(id).WillReturnError(boom)
	_, err = r.Identity(ctx, id)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_CredentialsByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	const q = `SELECT u.id, u.email, u.password_hash, u.active, COALESCE\(p.full_name, ''\), COALESCE\(p.role, ''\) FROM users u LEFT JOIN profiles p ON p.user_id = u.id WHERE u.email=\$1`

	mock.ExpectQuery(q).
		WithArgs("b@x.io").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "active", "full_name", "role"}).
			AddRow(id, "b@x.io", "$argon2id$...", false, "Bia", "admin"))
	c, err := r.CredentialsByEmail(ctx, "b@x.io")
	require.NoError(t, err)
	require.Equal(t, id, c.AccountID)
	require.False(t, c.Active)
	require.Equal(t, model.RoleAdmin, c.Role)
	require.Equal(t, "$argon2id$...", c.PasswordHash)

	mock.ExpectQuery(q).WithArgs("none@x.io").WillReturnError(pgx.ErrNoRows)
	_, err = r.CredentialsByEmail(ctx, "none@x.io")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Create_TxAndUniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()

	acc := model.Account{ID: uuid.Must(uuid.NewV4()), Email: "c@x.io", PasswordHash: "h", Active: true}
	prof := model.Profile{ID: uuid.Must(uuid.NewV4()), FullName: "Caio", Role: model.RoleUser, ReceiveNotifications: true}
	const insUser = `INSERT INTO users \(id, email, password_hash, active\) VALUES \(\$1, \$2, \$3, \$4\)`
	const insProfile = `INSERT INTO profiles \(id, user_id, full_name, role, whatsapp, receive_notifications\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\)`

	mock.ExpectBegin()
	mock.ExpectExec(insUser).WithArgs(acc.ID, acc.Email, acc.PasswordHash, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insProfile).WithArgs(prof.ID, acc.ID, "Caio", "user", prof.WhatsApp, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	require.NoError(t, r.Create(ctx, acc, prof))

	mock.ExpectBegin()
	mock.ExpectExec(insUser).WithArgs(acc.ID, acc.Email, acc.PasswordHash, true).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	require.ErrorIs(t, r.Create(ctx, acc, prof), errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_UpdateUser(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	const updProfile = `UPDATE profiles SET full_name = COALESCE\(\$2, full_name\), role = COALESCE\(\$3, role\), whatsapp = CASE WHEN \$4::text IS NULL THEN whatsapp ELSE NULLIF\(\$4::text, ''\) END, updated_at = now\(\) WHERE user_id=\$1`
	const updActive = `UPDATE users SET active=\$2 WHERE id=\$1`

	role := model.RoleUser
	inactive := false
	mock.ExpectBegin()
	mock.ExpectExec(updProfile).WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(updActive).WithArgs(id, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	require.NoError(t, r.UpdateUser(ctx, id, model.UserUpdate{Role: &role, Active: &inactive}))

	// no active change: users table untouched
	name := "New"
	mock.ExpectBegin()
	mock.ExpectExec(updProfile).WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	require.NoError(t, r.UpdateUser(ctx, id, model.UserUpdate{FullName: &name}))

	mock.ExpectBegin()
	mock.ExpectExec(updProfile).WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()
	require.ErrorIs(t, r.UpdateUser(ctx, id, model.UserUpdate{FullName: &name}), errs.ErrNotFound)

	// an empty number is passed through so the statement clears the column
	blank := ""
	mock.ExpectBegin()
	mock.ExpectExec(updProfile).WithArgs(id, (*string)(nil), (*string)(nil), &blank).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	require.NoError(t, r.UpdateUser(ctx, id, model.UserUpdate{WhatsApp: &blank}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_ProfileAndUpsert(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	pid := uuid.Must(uuid.NewV4())
	now := time.Now()
	wa := "+5511999999999"

	mock.ExpectQuery(`SELECT id, user_id, full_name, role, whatsapp, receive_notifications, created_at, updated_at FROM profiles WHERE user_id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "full_name", "role", "whatsapp", "receive_notifications", "created_at", "updated_at"}).
			AddRow(pid, id, "Dora", "user", &wa, true, now, now))
	p, err := r.Profile(ctx, id)
	require.NoError(t, err)
	require.Equal(t, pid, p.ID)
	require.Equal(t, model.RoleUser, p.Role)
	require.NotNil(t, p.WhatsApp)
	require.Equal(t, wa, *p.WhatsApp)

	const upsert = `INSERT INTO profiles \(id, user_id, full_name, role, whatsapp, receive_notifications\) VALUES \(\$1, \$2, \$3, 'user', \$4, \$5\) ON CONFLICT \(user_id\) DO UPDATE`
	mock.ExpectExec(upsert).WithArgs(pgxmock.AnyArg(), id, "Dora M.", pgxmock.AnyArg(), false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.UpsertProfile(ctx, id, model.ProfileUpdate{FullName: "Dora M.", ReceiveNotifications: false}))

	mock.ExpectExec(upsert).WithArgs(pgxmock.AnyArg(), id, "x", pgxmock.AnyArg(), true).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	require.ErrorIs(t, r.UpsertProfile(ctx, id, model.ProfileUpdate{FullName: "x", ReceiveNotifications: true}), errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_SetPasswordHash(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE users SET password_hash=\$2 WHERE id=\$1`).WithArgs(id, "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetPasswordHash(context.Background(), id, "new"))

	mock.ExpectExec(`UPDATE users SET password_hash=\$2 WHERE id=\$1`).WithArgs(id, "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetPasswordHash(context.Background(), id, "new"), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
