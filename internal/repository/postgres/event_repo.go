package postgres

import (
	"context"

	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/gofrs/uuid/v5"
)

// EventRepo implements EventRepository using PostgreSQL.
type EventRepo struct{ db *DB }

// NewEventRepo constructs a security event repository.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

const maxEventPage = 1000

// Append inserts one security_logs row.
func (r *EventRepo) Append(ctx context.Context, ev model.SecurityEvent) error {
	const q = `
INSERT INTO security_logs (id, event_type, ip_address, user_id, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, ev.ID, string(ev.Type), ev.ActorIP, ev.AccountID, ev.Details, ev.CreatedAt)
	return err
}

// List returns events newest first. Nil filter fields match everything.
func (r *EventRepo) List(ctx context.Context, f model.EventFilter) ([]model.SecurityEvent, error) {
	const q = `
SELECT id, event_type, ip_address, user_id, details, created_at
FROM security_logs
WHERE ($1::text IS NULL OR event_type = $1)
  AND ($2::uuid IS NULL OR user_id = $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3)
ORDER BY id DESC
LIMIT $4`
	var typ *string
	if f.Type != nil {
		s := string(*f.Type)
		typ = &s
	}
	limit := f.Limit
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}

	rows, err := r.db.Pool.Query(ctx, q, typ, f.AccountID, f.Since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SecurityEvent
	for rows.Next() {
		var (
			ev   model.SecurityEvent
			et   string
			user uuid.NullUUID
		)
		if err := rows.Scan(&ev.ID, &et, &ev.ActorIP, &user, &ev.Details, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Type = model.EventType(et)
		if user.Valid {
			id := user.UUID
			ev.AccountID = &id
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
