package repository

import (
	"context"

	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ResourceRepository provides access to owned resources: files, groups and categories.
type ResourceRepository interface {
	// Owner returns the account that created the resource.
	Owner(ctx context.Context, kind model.ResourceKind, id uuid.UUID) (uuid.UUID, error)

	// SoftDeleteFile marks a file deleted; it stays in storage.
	SoftDeleteFile(ctx context.Context, id uuid.UUID) error
	// CreateCategory inserts a category owned by c.CreatedBy.
	CreateCategory(ctx context.Context, c model.Category) error
	// UpdateCategory replaces name and description of a category.
	UpdateCategory(ctx context.Context, id uuid.UUID, upd model.CategoryUpdate) error
	// DeleteCategory removes a category.
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	// CreateGroup inserts a group owned by g.CreatedBy.
	CreateGroup(ctx context.Context, g model.Group) error
	// DeleteGroup removes a group and its memberships.
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	// UpdateGroup replaces name and description of a group.
	UpdateGroup(ctx context.Context, id uuid.UUID, upd model.GroupUpdate) error

	// GroupMembers lists the members of a group.
	GroupMembers(ctx context.Context, groupID uuid.UUID) ([]model.GroupMember, error)
	// ApplyMembers changes group membership in one transaction.
	ApplyMembers(ctx context.Context, groupID uuid.UUID, action model.MembershipAction, accountIDs []uuid.UUID) error

	// CreateFile inserts file metadata with its permission rows.
	CreateFile(ctx context.Context, f model.FileMeta) error
}
