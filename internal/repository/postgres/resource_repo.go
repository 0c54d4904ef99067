package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ResourceRepo implements ResourceRepository using PostgreSQL.
type ResourceRepo struct{ db *DB }

// NewResourceRepo constructs a resource repository.
func NewResourceRepo(db *DB) *ResourceRepo { return &ResourceRepo{db: db} }

var ownerQueries = map[model.ResourceKind]string{
	model.ResourceFile:     `SELECT uploaded_by FROM files WHERE id=$1 AND deleted_at IS NULL`,
	model.ResourceGroup:    `SELECT created_by FROM groups WHERE id=$1`,
	model.ResourceCategory: `SELECT created_by FROM categories WHERE id=$1`,
}

// Owner returns the creator of a live resource.
func (r *ResourceRepo) Owner(ctx context.Context, kind model.ResourceKind, id uuid.UUID) (uuid.UUID, error) {
	q, ok := ownerQueries[kind]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: resource kind %q", errs.ErrInvalidInput, kind)
	}
	var owner uuid.UUID
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&owner); err != nil {
		return uuid.Nil, notFound(err)
	}
	return owner, nil
}

// SoftDeleteFile sets deleted_at on a live file.
func (r *ResourceRepo) SoftDeleteFile(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE files SET deleted_at=now() WHERE id=$1 AND deleted_at IS NULL`
	return r.execOne(ctx, q, id)
}

// CreateCategory inserts a category.
func (r *ResourceRepo) CreateCategory(ctx context.Context, c model.Category) error {
	const q = `INSERT INTO categories (id, name, description, created_by) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, c.ID, c.Name, c.Description, c.CreatedBy)
	return createErr(err)
}

// UpdateCategory replaces category name and description.
func (r *ResourceRepo) UpdateCategory(ctx context.Context, id uuid.UUID, upd model.CategoryUpdate) error {
	const q = `UPDATE categories SET name=$2, description=$3, updated_at=now() WHERE id=$1`
	return r.execOne(ctx, q, id, upd.Name, upd.Description)
}

// CreateGroup inserts a group.
func (r *ResourceRepo) CreateGroup(ctx context.Context, g model.Group) error {
	const q = `INSERT INTO groups (id, name, description, created_by) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, g.ID, g.Name, g.Description, g.CreatedBy)
	return createErr(err)
}

func createErr(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: creator account does not exist", errs.ErrInvalidInput)
	}
	return err
}

// DeleteCategory removes a category; file permissions referencing it cascade.
func (r *ResourceRepo) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM categories WHERE id=$1`
	return r.execOne(ctx, q, id)
}

// DeleteGroup removes a group; memberships and file permissions cascade.
func (r *ResourceRepo) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM groups WHERE id=$1`
	return r.execOne(ctx, q, id)
}

// UpdateGroup replaces group name and description.
func (r *ResourceRepo) UpdateGroup(ctx context.Context, id uuid.UUID, upd model.GroupUpdate) error {
	const q = `UPDATE groups SET name=$2, description=$3, updated_at=now() WHERE id=$1`
	return r.execOne(ctx, q, id, upd.Name, upd.Description)
}

// GroupMembers lists members ordered by name.
func (r *ResourceRepo) GroupMembers(ctx context.Context, groupID uuid.UUID) ([]model.GroupMember, error) {
	const q = `
SELECT u.id, u.email, COALESCE(p.full_name, ''), COALESCE(p.role, '')
FROM user_groups ug
JOIN users u ON u.id = ug.user_id
LEFT JOIN profiles p ON p.user_id = u.id
WHERE ug.group_id=$1
ORDER BY p.full_name`
	rows, err := r.db.Pool.Query(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GroupMember
	for rows.Next() {
		var (
			m    model.GroupMember
			role string
		)
		if err := rows.Scan(&m.AccountID, &m.Email, &m.FullName, &role); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ApplyMembers applies a membership change atomically. "set" replaces the whole list,
// "add" is idempotent for existing members and "remove" ignores non-members.
func (r *ResourceRepo) ApplyMembers(ctx context.Context, groupID uuid.UUID, action model.MembershipAction, accountIDs []uuid.UUID) error {
	const (
		clearAll = `DELETE FROM user_groups WHERE group_id=$1`
		insert   = `INSERT INTO user_groups (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		remove   = `DELETE FROM user_groups WHERE group_id=$1 AND user_id=$2`
	)
	if !action.Valid() {
		return fmt.Errorf("%w: membership action %q", errs.ErrInvalidInput, action)
	}
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if action == model.MembershipSet {
			if _, err := tx.Exec(ctx, clearAll, groupID); err != nil {
				return err
			}
		}
		stmt := insert
		if action == model.MembershipRemove {
			stmt = remove
		}
		for _, id := range accountIDs {
			if _, err := tx.Exec(ctx, stmt, groupID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown group or account", errs.ErrInvalidInput)
	}
	return err
}

// CreateFile inserts file metadata and one permission row per grant.
func (r *ResourceRepo) CreateFile(ctx context.Context, f model.FileMeta) error {
	const insFile = `
INSERT INTO files (id, title, description, file_url, file_type, file_size, uploaded_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	const insPerm = `
INSERT INTO file_permissions (id, file_id, user_id, group_id, category_id)
VALUES ($1, $2, $3, $4, $5)`
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insFile, f.ID, f.Title, f.Description, f.FileURL, f.FileType, f.FileSize, f.UploadedBy); err != nil {
			return err
		}
		for _, p := range f.Permissions {
			pid, err := uuid.NewV4()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, insPerm, pid, f.ID, p.AccountID, p.GroupID, p.CategoryID); err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: permission references unknown account, group or category", errs.ErrInvalidInput)
	}
	return err
}

func (r *ResourceRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
