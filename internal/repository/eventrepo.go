package repository

import (
	"context"

	"github.com/and161185/arquivo-manager/internal/model"
)

// EventRepository is the append-only security event log.
type EventRepository interface {
	// Append inserts one event row. It never merges with existing rows.
	Append(ctx context.Context, ev model.SecurityEvent) error
	// List returns events newest first.
	List(ctx context.Context, f model.EventFilter) ([]model.SecurityEvent, error)
}
