package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/and161185/arquivo-manager/internal/repository"
)

// UploadInput carries one uploaded file and its access grants.
type UploadInput struct {
	Title       string
	Description string
	FileName    string
	Size        int64
	Content     io.ReadSeeker
	Permissions []model.FilePermission
}

// UploadRejectedError lists the validation problems of an upload.
type UploadRejectedError struct {
	Problems []string
}

func (e *UploadRejectedError) Error() string {
	return "invalid file: " + strings.Join(e.Problems, ", ")
}

// Unwrap makes the error match errs.ErrInvalidInput.
func (e *UploadRejectedError) Unwrap() error { return errs.ErrInvalidInput }

// ResourceService mutates owned resources. Authorization happens before these
// methods are reached; successful sensitive mutations are recorded here.
type ResourceService interface {
	// Owner returns the creator of a resource.
	Owner(ctx context.Context, kind model.ResourceKind, id uuid.UUID) (uuid.UUID, error)
	// DeleteFile soft-deletes a file.
	DeleteFile(ctx context.Context, actor model.Actor, id uuid.UUID) error
	// CreateCategory adds a category owned by the actor.
	CreateCategory(ctx context.Context, actor model.Actor, name string, description *string) (model.Category, error)
	// UpdateCategory renames a category.
	UpdateCategory(ctx context.Context, actor model.Actor, id uuid.UUID, upd model.CategoryUpdate) error
	// DeleteCategory removes a category.
	DeleteCategory(ctx context.Context, actor model.Actor, id uuid.UUID) error
	// CreateGroup adds a group owned by the actor.
	CreateGroup(ctx context.Context, actor model.Actor, name string, description *string) (model.Group, error)
	// DeleteGroup removes a group.
	DeleteGroup(ctx context.Context, actor model.Actor, id uuid.UUID) error
	// UpdateGroup renames a group and records group_updated.
	UpdateGroup(ctx context.Context, actor model.Actor, id uuid.UUID, upd model.GroupUpdate) error
	// GroupMembers lists a group's members.
	GroupMembers(ctx context.Context, id uuid.UUID) ([]model.GroupMember, error)
	// SetGroupMembers applies a membership change and records group_members_updated.
	SetGroupMembers(ctx context.Context, actor model.Actor, id uuid.UUID, action model.MembershipAction, members []uuid.UUID) error
	// RegisterUpload validates a file and stores its metadata and grants.
	RegisterUpload(ctx context.Context, actor model.Actor, in UploadInput) (model.FileMeta, error)
}

// ResourceServiceImpl implements ResourceService.
type ResourceServiceImpl struct {
	repo      repository.ResourceRepository
	events    EventRecorder
	validator FileValidator
}

// NewResourceService constructs ResourceService.
func NewResourceService(repo repository.ResourceRepository, events EventRecorder, maxUpload int64) *ResourceServiceImpl {
	return &ResourceServiceImpl{repo: repo, events: events, validator: FileValidator{MaxSize: maxUpload}}
}

// Owner implements ResourceService.
func (s *ResourceServiceImpl) Owner(ctx context.Context, kind model.ResourceKind, id uuid.UUID) (uuid.UUID, error) {
	return s.repo.Owner(ctx, kind, id)
}

// DeleteFile implements ResourceService.
func (s *ResourceServiceImpl) DeleteFile(ctx context.Context, _ model.Actor, id uuid.UUID) error {
	return s.repo.SoftDeleteFile(ctx, id)
}

// DeleteCategory implements ResourceService.
func (s *ResourceServiceImpl) DeleteCategory(ctx context.Context, _ model.Actor, id uuid.UUID) error {
	return s.repo.DeleteCategory(ctx, id)
}

// DeleteGroup implements ResourceService.
func (s *ResourceServiceImpl) DeleteGroup(ctx context.Context, _ model.Actor, id uuid.UUID) error {
	return s.repo.DeleteGroup(ctx, id)
}

// CreateCategory implements ResourceService.
func (s *ResourceServiceImpl) CreateCategory(ctx context.Context, actor model.Actor, name string, description *string) (model.Category, error) {
	name, err := resourceName("category", name)
	if err != nil {
		return model.Category{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Category{}, err
	}
	c := model.Category{ID: id, Name: name, Description: trimmed(description), CreatedBy: actor.AccountID}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return model.Category{}, err
	}
	return c, nil
}

// UpdateCategory implements ResourceService.
func (s *ResourceServiceImpl) UpdateCategory(ctx context.Context, _ model.Actor, id uuid.UUID, upd model.CategoryUpdate) error {
	name, err := resourceName("category", upd.Name)
	if err != nil {
		return err
	}
	upd.Name, upd.Description = name, trimmed(upd.Description)
	return s.repo.UpdateCategory(ctx, id, upd)
}

// CreateGroup implements ResourceService.
func (s *ResourceServiceImpl) CreateGroup(ctx context.Context, actor model.Actor, name string, description *string) (model.Group, error) {
	name, err := resourceName("group", name)
	if err != nil {
		return model.Group{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Group{}, err
	}
	g := model.Group{ID: id, Name: name, Description: trimmed(description), CreatedBy: actor.AccountID}
	if err := s.repo.CreateGroup(ctx, g); err != nil {
		return model.Group{}, err
	}
	return g, nil
}

func resourceName(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: %s name is required", errs.ErrInvalidInput, kind)
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", fmt.Errorf("%w: %s name is too long", errs.ErrInvalidInput, kind)
	}
	return name, nil
}

// UpdateGroup implements ResourceService.
func (s *ResourceServiceImpl) UpdateGroup(ctx context.Context, actor model.Actor, id uuid.UUID, upd model.GroupUpdate) error {
	name, err := resourceName("group", upd.Name)
	if err != nil {
		return err
	}
	upd.Name, upd.Description = name, trimmed(upd.Description)
	if err := s.repo.UpdateGroup(ctx, id, upd); err != nil {
		return err
	}
	uid := actor.AccountID
	s.events.Record(ctx, model.EventGroupUpdated, actor.IP, &uid, "Updated group: "+id.String())
	return nil
}

// GroupMembers implements ResourceService.
func (s *ResourceServiceImpl) GroupMembers(ctx context.Context, id uuid.UUID) ([]model.GroupMember, error) {
	return s.repo.GroupMembers(ctx, id)
}

// SetGroupMembers implements ResourceService. Duplicate ids are collapsed.
func (s *ResourceServiceImpl) SetGroupMembers(ctx context.Context, actor model.Actor, id uuid.UUID, action model.MembershipAction, members []uuid.UUID) error {
	if !action.Valid() {
		return fmt.Errorf("%w: action must be set, add or remove", errs.ErrInvalidInput)
	}
	seen := make(map[uuid.UUID]struct{}, len(members))
	uniq := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if m == uuid.Nil {
			return fmt.Errorf("%w: empty member id", errs.ErrInvalidInput)
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		uniq = append(uniq, m)
	}
	if action != model.MembershipSet && len(uniq) == 0 {
		return fmt.Errorf("%w: no members given", errs.ErrInvalidInput)
	}
	if err := s.repo.ApplyMembers(ctx, id, action, uniq); err != nil {
		return err
	}
	uid := actor.AccountID
	s.events.Record(ctx, model.EventGroupMembersUpdated, actor.IP, &uid,
		fmt.Sprintf("Updated members for group: %s (%s %d)", id, action, len(uniq)))
	return nil
}

// RegisterUpload implements ResourceService.
func (s *ResourceServiceImpl) RegisterUpload(ctx context.Context, actor model.Actor, in UploadInput) (model.FileMeta, error) {
	uid := actor.AccountID
	if in.Content == nil {
		s.events.Record(ctx, model.EventInvalidFileUpload, actor.IP, &uid, "no file")
		return model.FileMeta{}, &UploadRejectedError{Problems: []string{"no file"}}
	}
	mime, problems := s.validator.Validate(in.FileName, in.Size, in.Content)
	if len(problems) > 0 {
		s.events.Record(ctx, model.EventInvalidFileUpload, actor.IP, &uid, strings.Join(problems, ", "))
		return model.FileMeta{}, &UploadRejectedError{Problems: problems}
	}
	for _, p := range in.Permissions {
		if n := countSet(p.AccountID, p.GroupID, p.CategoryID); n != 1 {
			return model.FileMeta{}, fmt.Errorf("%w: each permission needs exactly one of user, group or category", errs.ErrInvalidInput)
		}
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(in.FileName), filepath.Ext(in.FileName))
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.FileMeta{}, err
	}
	meta := model.FileMeta{
		ID:          id,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		FileURL:     "/uploads/" + id.String() + strings.ToLower(filepath.Ext(in.FileName)),
		FileType:    mime,
		FileSize:    in.Size,
		UploadedBy:  actor.AccountID,
		Permissions: in.Permissions,
	}
	if err := s.repo.CreateFile(ctx, meta); err != nil {
		return model.FileMeta{}, err
	}
	return meta, nil
}

func countSet(ids ...*uuid.UUID) int {
	n := 0
	for _, id := range ids {
		if id != nil && *id != uuid.Nil {
			n++
		}
	}
	return n
}
