package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/and161185/arquivo-manager/internal/service"
	"github.com/and161185/arquivo-manager/internal/token"
)

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	Validate(raw string) (model.Claims, error)
}

// OwnerLookup resolves the creator of a resource.
type OwnerLookup interface {
	Owner(ctx context.Context, kind model.ResourceKind, id uuid.UUID) (uuid.UUID, error)
}

// Rule declares what a protected endpoint requires. Checks run in a fixed
// order: token, role or ownership, rate limit.
type Rule struct {
	// Action names the operation in security events.
	Action string
	// AdminOnly requires the stored role to be admin.
	AdminOnly bool
	// Roles, when set, lists the stored roles admitted.
	Roles []model.Role
	// Owner, when set, requires the caller to own the resource named by the
	// {id} path segment, or to be an admin.
	Owner model.ResourceKind
	// Limit is the rate-limit action consumed after authorization passes.
	Limit string
	// LogInvalidToken records invalid_token for bad tokens.
	LogInvalidToken bool
	// TokenOnly skips revalidation; the handler gets the token subject only.
	TokenOnly bool
}

// Guard is the single entry point to privileged handlers.
type Guard struct {
	tokens   TokenValidator
	reval    *service.Revalidator
	owners   OwnerLookup
	throttle *service.Throttler
	events   service.EventRecorder
	log      *zap.Logger
}

// NewGuard constructs a Guard.
func NewGuard(tokens TokenValidator, reval *service.Revalidator, owners OwnerLookup,
	throttle *service.Throttler, events service.EventRecorder, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{tokens: tokens, reval: reval, owners: owners, throttle: throttle, events: events, log: log}
}

// Protect wraps next so that it only runs after every check of rule passed.
// A failed check writes the response and returns; next never sees the request.
func (g *Guard) Protect(rule Rule, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := ClientIPFromContext(ctx)

		raw, ok := token.ExtractBearer(r.Header)
		if !ok {
			writeError(w, http.StatusUnauthorized, msgAuthRequired)
			return
		}
		claims, err := g.tokens.Validate(raw)
		if err != nil {
			if rule.LogInvalidToken {
				g.events.Record(ctx, model.EventInvalidToken, ip, nil, fmt.Sprintf("%s attempt", rule.Action))
			}
			writeError(w, http.StatusUnauthorized, msgAuthRequired)
			return
		}
		if rule.TokenOnly {
			next(w, r.WithContext(withSubject(ctx, claims.AccountID)))
			return
		}

		ident, err := g.authorize(ctx, r, ip, claims.AccountID, rule)
		if err != nil {
			fail(w, g.log, err)
			return
		}
		actor := model.Actor{AccountID: ident.AccountID, Email: ident.Email, Role: ident.Role, IP: ip}

		if rule.Limit != "" {
			if err := g.throttle.Critical(ctx, actor, rule.Limit); err != nil {
				fail(w, g.log, err)
				return
			}
		}
		next(w, r.WithContext(WithActor(ctx, actor)))
	})
}

func (g *Guard) authorize(ctx context.Context, r *http.Request, ip string, id uuid.UUID, rule Rule) (model.Identity, error) {
	switch {
	case rule.AdminOnly:
		return g.reval.RequireAdmin(ctx, ip, id, rule.Action)
	case rule.Owner != "":
		return g.authorizeOwner(ctx, r, ip, id, rule)
	case len(rule.Roles) > 0:
		return g.reval.RequireRole(ctx, ip, id, rule.Action, rule.Roles...)
	}

	ident, err := g.reval.Identity(ctx, ip, id)
	if err != nil {
		return model.Identity{}, err
	}
	switch {
	case ident.Email == "":
		return model.Identity{}, errs.ErrUnauthenticated
	case ident.Role == model.RoleNone:
		return model.Identity{}, errs.ErrForbidden
	}
	return ident, nil
}

// authorizeOwner revalidates the caller before touching the resource, so
// inactive accounts learn nothing about which ids exist. A missing resource
// is a denial for everyone but admins.
func (g *Guard) authorizeOwner(ctx context.Context, r *http.Request, ip string, id uuid.UUID, rule Rule) (model.Identity, error) {
	ident, err := g.reval.Identity(ctx, ip, id)
	if err != nil {
		return model.Identity{}, err
	}
	if ident.Role == model.RoleNone {
		return model.Identity{}, errs.ErrForbidden
	}
	rid, err := pathID(r)
	if err != nil {
		return model.Identity{}, err
	}
	owner, err := g.owners.Owner(ctx, rule.Owner, rid)
	switch {
	case errors.Is(err, errs.ErrNotFound) && ident.Role != model.RoleAdmin:
		owner = uuid.Nil
	case err != nil:
		return model.Identity{}, err
	}
	if err := g.reval.AllowModify(ctx, ip, ident, owner, rule.Action); err != nil {
		return model.Identity{}, err
	}
	return ident, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(r.PathValue("id"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id", errs.ErrInvalidInput)
	}
	return id, nil
}

// mustActor returns the caller set by Protect. Handlers registered without
// Protect must not call it.
func mustActor(ctx context.Context) model.Actor {
	a, ok := ActorFromContext(ctx)
	if !ok {
		panic(errors.New("httpserver: handler reached without guard"))
	}
	return a
}
