package httpserver

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/arquivo-manager/internal/model"
)

type ctxKey string

const (
	actorKey   ctxKey = "am.actor"
	subjectKey ctxKey = "am.subject"
	ipKey      ctxKey = "am.ip"
)

// WithActor stores the revalidated caller in context.
func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext fetches the revalidated caller.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey).(model.Actor)
	return a, ok
}

// withSubject stores the token subject of a request that skipped revalidation.
func withSubject(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, subjectKey, id)
}

func subjectFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(subjectKey).(uuid.UUID)
	return id, ok
}

// WithClientIP stores the caller address used for rate limits and events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey, ip)
}

// ClientIPFromContext returns the caller address, or "unknown".
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ipKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}
