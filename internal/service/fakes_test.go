package service

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/and161185/arquivo-manager/internal/repository"
)

type fakeAccount struct {
	acc  model.Account
	prof *model.Profile
}

type fakeAccounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*fakeAccount

	identityErr  error
	credsErr     error
	credsCalls   int
	identityHits int
	rehashed     map[uuid.UUID]string
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[uuid.UUID]*fakeAccount{}, rehashed: map[uuid.UUID]string{}}
}

// add inserts an account with a profile of the given role.
func (f *fakeAccounts) add(email, hash string, role model.Role, active bool) uuid.UUID {
	id := uuid.Must(uuid.NewV4())
	f.byID[id] = &fakeAccount{
		acc:  model.Account{ID: id, Email: email, PasswordHash: hash, Active: active},
		prof: &model.Profile{ID: uuid.Must(uuid.NewV4()), AccountID: id, FullName: email, Role: role},
	}
	return id
}

func (f *fakeAccounts) Identity(_ context.Context, id uuid.UUID) (model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identityHits++
	if f.identityErr != nil {
		return model.Identity{}, f.identityErr
	}
	a, ok := f.byID[id]
	if !ok {
		return model.Identity{}, errs.ErrNotFound
	}
	ident := model.Identity{AccountID: id, Email: a.acc.Email, Active: a.acc.Active}
	if a.prof != nil {
		ident.Role = a.prof.Role
		ident.FullName = a.prof.FullName
	}
	return ident, nil
}

func (f *fakeAccounts) CredentialsByEmail(_ context.Context, email string) (model.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credsCalls++
	if f.credsErr != nil {
		return model.Credentials{}, f.credsErr
	}
	for id, a := range f.byID {
		if a.acc.Email == email {
			c := model.Credentials{AccountID: id, Email: email, PasswordHash: a.acc.PasswordHash, Active: a.acc.Active}
			if a.prof != nil {
				c.Role = a.prof.Role
				c.FullName = a.prof.FullName
			}
			return c, nil
		}
	}
	return model.Credentials{}, errs.ErrNotFound
}

func (f *fakeAccounts) Create(_ context.Context, acc model.Account, prof model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.acc.Email == acc.Email {
			return errs.ErrAlreadyExists
		}
	}
	p := prof
	f.byID[acc.ID] = &fakeAccount{acc: acc, prof: &p}
	return nil
}

func (f *fakeAccounts) UpdateUser(_ context.Context, id uuid.UUID, upd model.UserUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok || a.prof == nil {
		return errs.ErrNotFound
	}
	if upd.FullName != nil {
		a.prof.FullName = *upd.FullName
	}
	if upd.Role != nil {
		a.prof.Role = *upd.Role
	}
	if upd.WhatsApp != nil {
		a.prof.WhatsApp = upd.WhatsApp
		if *upd.WhatsApp == "" {
			a.prof.WhatsApp = nil
		}
	}
	if upd.Active != nil {
		a.acc.Active = *upd.Active
	}
	return nil
}

func (f *fakeAccounts) Profile(_ context.Context, id uuid.UUID) (model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok || a.prof == nil {
		return model.Profile{}, errs.ErrNotFound
	}
	return *a.prof, nil
}

func (f *fakeAccounts) UpsertProfile(_ context.Context, id uuid.UUID, upd model.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	if a.prof == nil {
		a.prof = &model.Profile{ID: uuid.Must(uuid.NewV4()), AccountID: id, Role: model.RoleUser}
	}
	a.prof.FullName = upd.FullName
	a.prof.WhatsApp = upd.WhatsApp
	a.prof.ReceiveNotifications = upd.ReceiveNotifications
	return nil
}

func (f *fakeAccounts) SetPasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	a.acc.PasswordHash = hash
	f.rehashed[id] = hash
	return nil
}

type recordedEvent struct {
	typ     model.EventType
	ip      string
	account *uuid.UUID
	details string
}

type fakeEvents struct {
	mu  sync.Mutex
	all []recordedEvent
}

func (f *fakeEvents) Record(_ context.Context, typ model.EventType, ip string, accountID *uuid.UUID, details string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all = append(f.all, recordedEvent{typ: typ, ip: ip, account: accountID, details: details})
}

func (f *fakeEvents) count(typ model.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.all {
		if e.typ == typ {
			n++
		}
	}
	return n
}

func (f *fakeEvents) last() recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.all[len(f.all)-1]
}

type fakeResources struct {
	owners  map[uuid.UUID]uuid.UUID
	members map[uuid.UUID][]uuid.UUID
	files   []model.FileMeta
	deleted []uuid.UUID
	groups  map[uuid.UUID]model.GroupUpdate
	cats    map[uuid.UUID]model.CategoryUpdate
	err     error
}

var _ repository.ResourceRepository = (*fakeResources)(nil)

func newFakeResources() *fakeResources {
	return &fakeResources{
		owners:  map[uuid.UUID]uuid.UUID{},
		members: map[uuid.UUID][]uuid.UUID{},
		groups:  map[uuid.UUID]model.GroupUpdate{},
		cats:    map[uuid.UUID]model.CategoryUpdate{},
	}
}

func (f *fakeResources) Owner(_ context.Context, _ model.ResourceKind, id uuid.UUID) (uuid.UUID, error) {
	o, ok := f.owners[id]
	if !ok {
		return uuid.Nil, errs.ErrNotFound
	}
	return o, nil
}

func (f *fakeResources) del(id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.owners[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.owners, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeResources) SoftDeleteFile(_ context.Context, id uuid.UUID) error { return f.del(id) }
func (f *fakeResources) DeleteCategory(_ context.Context, id uuid.UUID) error { return f.del(id) }
func (f *fakeResources) DeleteGroup(_ context.Context, id uuid.UUID) error    { return f.del(id) }

func (f *fakeResources) CreateCategory(_ context.Context, c model.Category) error {
	if f.err != nil {
		return f.err
	}
	f.owners[c.ID] = c.CreatedBy
	f.cats[c.ID] = model.CategoryUpdate{Name: c.Name, Description: c.Description}
	return nil
}

func (f *fakeResources) UpdateCategory(_ context.Context, id uuid.UUID, upd model.CategoryUpdate) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.owners[id]; !ok {
		return errs.ErrNotFound
	}
	f.cats[id] = upd
	return nil
}

func (f *fakeResources) CreateGroup(_ context.Context, g model.Group) error {
	if f.err != nil {
		return f.err
	}
	f.owners[g.ID] = g.CreatedBy
	f.groups[g.ID] = model.GroupUpdate{Name: g.Name, Description: g.Description}
	return nil
}

func (f *fakeResources) UpdateGroup(_ context.Context, id uuid.UUID, upd model.GroupUpdate) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.owners[id]; !ok {
		return errs.ErrNotFound
	}
	f.groups[id] = upd
	return nil
}

func (f *fakeResources) GroupMembers(_ context.Context, id uuid.UUID) ([]model.GroupMember, error) {
	var out []model.GroupMember
	for _, m := range f.members[id] {
		out = append(out, model.GroupMember{AccountID: m})
	}
	return out, nil
}

func (f *fakeResources) ApplyMembers(_ context.Context, id uuid.UUID, action model.MembershipAction, ids []uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	cur := f.members[id]
	switch action {
	case model.MembershipSet:
		cur = append([]uuid.UUID(nil), ids...)
	case model.MembershipAdd:
		for _, n := range ids {
			found := false
			for _, c := range cur {
				if c == n {
					found = true
				}
			}
			if !found {
				cur = append(cur, n)
			}
		}
	case model.MembershipRemove:
		kept := cur[:0]
		for _, c := range cur {
			drop := false
			for _, n := range ids {
				if c == n {
					drop = true
				}
			}
			if !drop {
				kept = append(kept, c)
			}
		}
		cur = kept
	}
	f.members[id] = cur
	return nil
}

func (f *fakeResources) CreateFile(_ context.Context, m model.FileMeta) error {
	if f.err != nil {
		return f.err
	}
	f.files = append(f.files, m)
	return nil
}
