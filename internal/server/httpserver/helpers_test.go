package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	pkgcrypto "github.com/and161185/arquivo-manager/internal/crypto"
	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/limiter"
	"github.com/and161185/arquivo-manager/internal/limiter/limitertest"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/and161185/arquivo-manager/internal/service"
	"github.com/and161185/arquivo-manager/internal/token"
)

// memAccounts is a map-backed AccountRepository.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]model.Account
	profiles map[uuid.UUID]model.Profile
	lookups  int
	writes   int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: map[uuid.UUID]model.Account{}, profiles: map[uuid.UUID]model.Profile{}}
}

func (m *memAccounts) Identity(_ context.Context, id uuid.UUID) (model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return model.Identity{}, errs.ErrNotFound
	}
	p := m.profiles[id]
	return model.Identity{AccountID: id, Email: a.Email, FullName: p.FullName, Active: a.Active, Role: p.Role}, nil
}

func (m *memAccounts) CredentialsByEmail(_ context.Context, email string) (model.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	for id, a := range m.accounts {
		if a.Email == email {
			p := m.profiles[id]
			return model.Credentials{AccountID: id, Email: a.Email, FullName: p.FullName, PasswordHash: a.PasswordHash, Active: a.Active, Role: p.Role}, nil
		}
	}
	return model.Credentials{}, errs.ErrNotFound
}

func (m *memAccounts) Create(_ context.Context, acc model.Account, prof model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == acc.Email {
			return errs.ErrAlreadyExists
		}
	}
	m.writes++
	m.accounts[acc.ID] = acc
	m.profiles[acc.ID] = prof
	return nil
}

func (m *memAccounts) UpdateUser(_ context.Context, id uuid.UUID, upd model.UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return errs.ErrNotFound
	}
	m.writes++
	if upd.FullName != nil {
		p.FullName = *upd.FullName
	}
	if upd.Role != nil {
		p.Role = *upd.Role
	}
	if upd.WhatsApp != nil {
		p.WhatsApp = upd.WhatsApp
		if *upd.WhatsApp == "" {
			p.WhatsApp = nil
		}
	}
	m.profiles[id] = p
	if upd.Active != nil {
		a := m.accounts[id]
		a.Active = *upd.Active
		m.accounts[id] = a
	}
	return nil
}

func (m *memAccounts) Profile(_ context.Context, id uuid.UUID) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return model.Profile{}, errs.ErrNotFound
	}
	return p, nil
}

func (m *memAccounts) UpsertProfile(_ context.Context, id uuid.UUID, upd model.ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[id]
	p.AccountID, p.FullName, p.WhatsApp, p.ReceiveNotifications = id, upd.FullName, upd.WhatsApp, upd.ReceiveNotifications
	m.profiles[id] = p
	m.writes++
	return nil
}

func (m *memAccounts) SetPasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.PasswordHash = hash
	m.accounts[id] = a
	return nil
}

// memResources is a map-backed ResourceRepository.
type memResources struct {
	mu      sync.Mutex
	owners  map[uuid.UUID]uuid.UUID
	deleted []uuid.UUID
	files   []model.FileMeta
	members map[uuid.UUID][]uuid.UUID
}

func newMemResources() *memResources {
	return &memResources{owners: map[uuid.UUID]uuid.UUID{}, members: map[uuid.UUID][]uuid.UUID{}}
}

func (m *memResources) own(owner uuid.UUID) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.Must(uuid.NewV4())
	m.owners[id] = owner
	return id
}

func (m *memResources) Owner(_ context.Context, _ model.ResourceKind, id uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return uuid.Nil, errs.ErrNotFound
	}
	return o, nil
}

func (m *memResources) remove(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[id]; !ok {
		return errs.ErrNotFound
	}
	delete(m.owners, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memResources) SoftDeleteFile(_ context.Context, id uuid.UUID) error { return m.remove(id) }
func (m *memResources) DeleteCategory(_ context.Context, id uuid.UUID) error { return m.remove(id) }
func (m *memResources) DeleteGroup(_ context.Context, id uuid.UUID) error    { return m.remove(id) }

func (m *memResources) CreateCategory(_ context.Context, c model.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[c.ID] = c.CreatedBy
	return nil
}

func (m *memResources) UpdateCategory(_ context.Context, id uuid.UUID, _ model.CategoryUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[id]; !ok {
		return errs.ErrNotFound
	}
	return nil
}

func (m *memResources) CreateGroup(_ context.Context, g model.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[g.ID] = g.CreatedBy
	return nil
}

func (m *memResources) UpdateGroup(_ context.Context, id uuid.UUID, _ model.GroupUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[id]; !ok {
		return errs.ErrNotFound
	}
	return nil
}

func (m *memResources) GroupMembers(_ context.Context, id uuid.UUID) ([]model.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.GroupMember
	for _, a := range m.members[id] {
		out = append(out, model.GroupMember{AccountID: a})
	}
	return out, nil
}

func (m *memResources) ApplyMembers(_ context.Context, id uuid.UUID, _ model.MembershipAction, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[id] = append([]uuid.UUID(nil), ids...)
	return nil
}

func (m *memResources) CreateFile(_ context.Context, meta model.FileMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, meta)
	return nil
}

// memEvents records and lists security events.
type memEvents struct {
	mu  sync.Mutex
	all []model.SecurityEvent
}

func (m *memEvents) Record(_ context.Context, typ model.EventType, ip string, accountID *uuid.UUID, details string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all = append(m.all, model.SecurityEvent{ID: uuid.Must(uuid.NewV4()).String(), Type: typ, ActorIP: ip, AccountID: accountID, Details: details})
}

func (m *memEvents) List(_ context.Context, f model.EventFilter) ([]model.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SecurityEvent
	for _, e := range m.all {
		if f.Type == nil || *f.Type == e.Type {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) count(typ model.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.all {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type testEnv struct {
	h         http.Handler
	accounts  *memAccounts
	resources *memResources
	events    *memEvents
	tokens    *token.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	tokens, err := token.NewService([]byte(strings.Repeat("s", 32)))
	require.NoError(t, err)

	accounts := newMemAccounts()
	resources := newMemResources()
	events := &memEvents{}

	reval := service.NewRevalidator(accounts, events)
	throttle := service.NewThrottler(limiter.New(limitertest.New()), nil, service.KeyByAccount, events, nil)
	resSvc := service.NewResourceService(resources, events, 1<<20)
	guard := NewGuard(tokens, reval, resSvc, throttle, events, log)
	srv := New(Services{
		Auth:      service.NewAuthService(accounts, tokens, throttle, reval, events, log),
		Accounts:  service.NewAccountService(accounts, events),
		Resources: resSvc,
		Events:    events,
	}, guard, log, WithMaxUpload(1<<20))

	return &testEnv{h: srv.Handler(), accounts: accounts, resources: resources, events: events, tokens: tokens}
}

// addAccount stores an account and returns its id and a valid token.
func (e *testEnv) addAccount(t *testing.T, email, password string, role model.Role, active bool) (uuid.UUID, string) {
	t.Helper()
	hash := "unused"
	if password != "" {
		var err error
		hash, err = pkgcrypto.HashPassword(password)
		require.NoError(t, err)
	}
	id := uuid.Must(uuid.NewV4())
	e.accounts.mu.Lock()
	e.accounts.accounts[id] = model.Account{ID: id, Email: email, PasswordHash: hash, Active: active}
	e.accounts.profiles[id] = model.Profile{ID: uuid.Must(uuid.NewV4()), AccountID: id, FullName: email, Role: role}
	e.accounts.mu.Unlock()

	tok, err := e.tokens.Issue(id, email, role)
	require.NoError(t, err)
	return id, tok.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	return e.doRaw(t, method, path, bearer, "1.2.3.4:5555", "application/json", rd)
}

func (e *testEnv) doRaw(t *testing.T, method, path, bearer, remote, ctype string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = remote
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	msg, _ := out["error"].(string)
	return msg
}
