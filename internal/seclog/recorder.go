// Package seclog records security events to the append-only audit log.
//
// Recording is best-effort: a failing store is logged and never fails the
// request that produced the event.
package seclog

import (
	"context"
	"crypto/rand"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/and161185/arquivo-manager/internal/repository"
)

const (
	writeTimeout = 3 * time.Second
	maxDetails   = 1024

	defaultPage = 100
	maxPage     = 1000
)

// Counter receives one call per recorded event.
type Counter interface {
	SecurityEvent(eventType string)
}

// Recorder appends security events through an EventRepository.
type Recorder struct {
	store   repository.EventRepository
	log     *zap.Logger
	metrics Counter
	now     func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Option configures Recorder.
type Option func(*Recorder)

// WithMetrics counts every recorded event.
func WithMetrics(c Counter) Option {
	return func(r *Recorder) { r.metrics = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// New constructs a Recorder.
func New(store repository.EventRepository, log *zap.Logger, opts ...Option) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{
		store:   store,
		log:     log,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one event. It never returns an error and never blocks the
// caller past a short write timeout; the write survives cancellation of ctx.
func (r *Recorder) Record(ctx context.Context, typ model.EventType, ip string, accountID *uuid.UUID, details string) {
	if !typ.Valid() {
		r.log.Warn("security event dropped: unknown type", zap.String("type", string(typ)))
		return
	}
	now := r.now().UTC()
	ev := model.SecurityEvent{
		ID:        r.newID(now),
		Type:      typ,
		ActorIP:   ip,
		AccountID: accountID,
		Details:   truncate(details, maxDetails),
		CreatedAt: now,
	}
	if r.metrics != nil {
		r.metrics.SecurityEvent(string(typ))
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.store.Append(wctx, ev); err != nil {
		fields := []zap.Field{
			zap.String("type", string(typ)),
			zap.String("ip", ip),
			zap.Error(err),
		}
		if accountID != nil {
			fields = append(fields, zap.String("account_id", accountID.String()))
		}
		r.log.Warn("security event not persisted", fields...)
	}
}

// List returns recorded events newest first. Limit defaults to 100 and is capped at 1000.
func (r *Recorder) List(ctx context.Context, f model.EventFilter) ([]model.SecurityEvent, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPage
	case f.Limit > maxPage:
		f.Limit = maxPage
	}
	return r.store.List(ctx, f)
}

func (r *Recorder) newID(at time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), r.entropy)
	if err != nil {
		// monotonic entropy overflow within one millisecond
		return ulid.Make().String()
	}
	return id.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
