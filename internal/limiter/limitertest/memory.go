// Package limitertest provides an in-memory AttemptStore for tests.
package limitertest

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/arquivo-manager/internal/limiter"
)

type attempt struct {
	actor  string
	action string
	at     time.Time
}

// Store keeps attempts in a slice guarded by one mutex.
type Store struct {
	mu   sync.Mutex
	rows []attempt

	// Err, if set, is returned by WithLock without running fn.
	Err error
}

// New returns an empty store.
func New() *Store { return &Store{} }

var _ limiter.AttemptStore = (*Store)(nil)

// WithLock implements limiter.AttemptStore. Changes are discarded when fn fails.
func (s *Store) WithLock(ctx context.Context, actorKey, action string, fn func(limiter.AttemptLog) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l := &log{rows: append([]attempt(nil), s.rows...)}
	if err := fn(l); err != nil {
		return err
	}
	s.rows = l.rows
	return nil
}

// Len returns the number of stored attempts for (actorKey, action).
func (s *Store) Len(actorKey, action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.actor == actorKey && r.action == action {
			n++
		}
	}
	return n
}

type log struct{ rows []attempt }

func (l *log) Prune(_ context.Context, action string, cutoff time.Time) error {
	kept := l.rows[:0]
	for _, r := range l.rows {
		if r.action == action && r.at.Before(cutoff) {
			continue
		}
		kept = append(kept, r)
	}
	l.rows = kept
	return nil
}

func (l *log) Count(_ context.Context, actorKey, action string, since time.Time) (int, error) {
	n := 0
	for _, r := range l.rows {
		if r.actor == actorKey && r.action == action && r.at.After(since) {
			n++
		}
	}
	return n, nil
}

func (l *log) Insert(_ context.Context, actorKey, action string, at time.Time) error {
	l.rows = append(l.rows, attempt{actor: actorKey, action: action, at: at})
	return nil
}
