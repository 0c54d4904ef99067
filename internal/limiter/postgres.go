package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL AttemptStore. Each call runs in one transaction holding
// a transaction-scoped advisory lock derived from (actor_key, action), which
// closes the window between the count and the insert for concurrent requests.
type PG struct {
	db txBeginner
}

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewPG constructs a PostgreSQL-backed attempt store.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{db: pool}
}

// NewPGWithBeginner constructs the store over any transaction source (pgxmock in tests).
func NewPGWithBeginner(db txBeginner) *PG {
	return &PG{db: db}
}

var _ AttemptStore = (*PG)(nil)

// WithLock implements AttemptStore.
func (s *PG) WithLock(ctx context.Context, actorKey, action string, fn func(AttemptLog) error) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const lock = `SELECT pg_advisory_xact_lock(hashtextextended($1 || '/' || $2, 0))`
	if _, err = tx.Exec(ctx, lock, actorKey, action); err != nil {
		return err
	}
	return fn(pgLog{tx: tx})
}

type pgLog struct{ tx pgx.Tx }

func (l pgLog) Prune(ctx context.Context, action string, cutoff time.Time) error {
	const q = `DELETE FROM rate_limits WHERE action=$1 AND attempted_at < $2`
	_, err := l.tx.Exec(ctx, q, action, cutoff)
	return err
}

func (l pgLog) Count(ctx context.Context, actorKey, action string, since time.Time) (int, error) {
	const q = `SELECT count(*) FROM rate_limits WHERE actor_key=$1 AND action=$2 AND attempted_at > $3`
	var n int64
	if err := l.tx.QueryRow(ctx, q, actorKey, action, since).Scan(&n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (l pgLog) Insert(ctx context.Context, actorKey, action string, at time.Time) error {
	const q = `INSERT INTO rate_limits (actor_key, action, attempted_at) VALUES ($1, $2, $3)`
	_, err := l.tx.Exec(ctx, q, actorKey, action, at)
	return err
}
