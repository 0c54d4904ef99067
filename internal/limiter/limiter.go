// Package limiter implements sliding-window attempt limiting for logins and
// critical operations.
//
// All state lives in an AttemptStore; the limiter itself holds none, so any
// number of server processes can share one store.
package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Action names of the default policy table.
const (
	ActionLogin              = "login"
	ActionInviteUser         = "critical_invite_user"
	ActionUpdateUser         = "critical_update_user"
	ActionDeleteFile         = "critical_delete_file"
	ActionDeleteCategory     = "critical_delete_category"
	ActionDeleteGroup        = "critical_delete_group"
	ActionUpdateGroup        = "critical_update_group"
	ActionManageGroupMembers = "critical_manage_group_members"
)

// ErrBadPolicy is returned for a policy that can never admit an attempt.
var ErrBadPolicy = errors.New("limiter: invalid policy")

// Policy bounds the attempts one actor may make for an action within Window.
type Policy struct {
	Action      string        `yaml:"action"`
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

// Validate checks that the policy is usable.
func (p Policy) Validate() error {
	if p.Action == "" || p.MaxAttempts <= 0 || p.Window <= 0 {
		return fmt.Errorf("%w: %q max=%d window=%s", ErrBadPolicy, p.Action, p.MaxAttempts, p.Window)
	}
	return nil
}

// Policies indexes policies by action.
type Policies map[string]Policy

// DefaultPolicies returns the built-in policy table.
func DefaultPolicies() Policies {
	ps := Policies{}
	for _, p := range []Policy{
		{Action: ActionLogin, MaxAttempts: 5, Window: 300 * time.Second},
		{Action: ActionInviteUser, MaxAttempts: 3, Window: 300 * time.Second},
		{Action: ActionUpdateUser, MaxAttempts: 5, Window: 60 * time.Second},
		{Action: ActionDeleteFile, MaxAttempts: 3, Window: 300 * time.Second},
		{Action: ActionDeleteCategory, MaxAttempts: 3, Window: 300 * time.Second},
		{Action: ActionDeleteGroup, MaxAttempts: 3, Window: 300 * time.Second},
		{Action: ActionUpdateGroup, MaxAttempts: 5, Window: 60 * time.Second},
		{Action: ActionManageGroupMembers, MaxAttempts: 10, Window: 60 * time.Second},
	} {
		ps[p.Action] = p
	}
	return ps
}

// Get returns the policy for action. Unknown actions fall back to a strict
// 3 per 300s budget.
func (ps Policies) Get(action string) Policy {
	if p, ok := ps[action]; ok {
		return p
	}
	return Policy{Action: action, MaxAttempts: 3, Window: 300 * time.Second}
}

// Merge returns a copy of ps with every valid policy of over applied on top.
func (ps Policies) Merge(over []Policy) (Policies, error) {
	out := make(Policies, len(ps)+len(over))
	for k, v := range ps {
		out[k] = v
	}
	for _, p := range over {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out[p.Action] = p
	}
	return out, nil
}

// Limiter decides whether one more attempt is admitted.
type Limiter interface {
	// CheckAndRecord reports whether the attempt is allowed and, if so, records it.
	// A denied attempt is not recorded.
	CheckAndRecord(ctx context.Context, actorKey string, p Policy) (bool, error)
}

// AttemptLog is the view of the store available while the per-key lock is held.
type AttemptLog interface {
	// Prune deletes attempts for action recorded strictly before cutoff.
	Prune(ctx context.Context, action string, cutoff time.Time) error
	// Count returns attempts for (actorKey, action) recorded strictly after since.
	Count(ctx context.Context, actorKey, action string, since time.Time) (int, error)
	// Insert records an attempt at the given instant.
	Insert(ctx context.Context, actorKey, action string, at time.Time) error
}

// AttemptStore serializes attempts for the same (actorKey, action) pair.
type AttemptStore interface {
	// WithLock runs fn holding an exclusive lock for (actorKey, action).
	// Changes made through the log are committed only if fn returns nil.
	WithLock(ctx context.Context, actorKey, action string, fn func(AttemptLog) error) error
}

// Window is the sliding-window Limiter.
type Window struct {
	store AttemptStore
	now   func() time.Time
}

// Option configures Window.
type Option func(*Window)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Window) {
		if now != nil {
			w.now = now
		}
	}
}

// New constructs a sliding-window limiter over store.
func New(store AttemptStore, opts ...Option) *Window {
	w := &Window{store: store, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ Limiter = (*Window)(nil)

// CheckAndRecord prunes stale rows for the action, counts the actor's attempts
// inside the window and records a new one unless the budget is spent.
func (w *Window) CheckAndRecord(ctx context.Context, actorKey string, p Policy) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	if actorKey == "" {
		return false, errors.New("limiter: empty actor key")
	}
	now := w.now()
	cutoff := now.Add(-p.Window)

	var allowed bool
	err := w.store.WithLock(ctx, actorKey, p.Action, func(log AttemptLog) error {
		if err := log.Prune(ctx, p.Action, cutoff); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		n, err := log.Count(ctx, actorKey, p.Action, cutoff)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		if n >= p.MaxAttempts {
			return nil
		}
		if err := log.Insert(ctx, actorKey, p.Action, now); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		allowed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// IPKey returns the actor key for a client address. The address is hashed so
// the attempts table never stores raw IPs.
func IPKey(ip string) string {
	h := sha256.Sum256([]byte(ip))
	return "ip:" + hex.EncodeToString(h[:16])
}

// AccountKey returns the actor key for an authenticated account.
func AccountKey(id uuid.UUID) string {
	return "acct:" + id.String()
}
