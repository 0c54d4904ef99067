package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/limiter"
	"github.com/and161185/arquivo-manager/internal/model"
)

// KeyMode selects the actor key for critical-operation limits.
type KeyMode string

const (
	// KeyByIP shares one budget between all accounts behind an address.
	KeyByIP KeyMode = "ip"
	// KeyByAccount gives every account its own budget.
	KeyByAccount KeyMode = "account"
)

// ParseKeyMode validates a configured key mode.
func ParseKeyMode(s string) (KeyMode, error) {
	switch m := KeyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case KeyByIP, KeyByAccount:
		return m, nil
	case "":
		return KeyByAccount, nil
	default:
		return "", fmt.Errorf("unknown rate limit key mode %q", s)
	}
}

// DenialCounter counts rate-limit denials by action.
type DenialCounter interface {
	RateLimited(action string)
}

// Throttler applies the policy table to logins and critical operations.
// A denial is recorded as rate_limit_exceeded and returned as errs.ErrRateLimited.
type Throttler struct {
	lim      limiter.Limiter
	policies limiter.Policies
	mode     KeyMode
	events   EventRecorder
	denials  DenialCounter
}

// NewThrottler constructs a Throttler. A nil policy table uses the defaults.
func NewThrottler(lim limiter.Limiter, policies limiter.Policies, mode KeyMode, events EventRecorder, denials DenialCounter) *Throttler {
	if policies == nil {
		policies = limiter.DefaultPolicies()
	}
	if mode == "" {
		mode = KeyByAccount
	}
	return &Throttler{lim: lim, policies: policies, mode: mode, events: events, denials: denials}
}

// Login consumes one login attempt for the client address.
func (t *Throttler) Login(ctx context.Context, ip string) error {
	return t.check(ctx, limiter.IPKey(ip), limiter.ActionLogin, ip, nil)
}

// Critical consumes one attempt of a critical action for the actor.
func (t *Throttler) Critical(ctx context.Context, actor model.Actor, action string) error {
	key := limiter.AccountKey(actor.AccountID)
	if t.mode == KeyByIP {
		key = limiter.IPKey(actor.IP)
	}
	id := actor.AccountID
	return t.check(ctx, key, action, actor.IP, &id)
}

func (t *Throttler) check(ctx context.Context, key, action, ip string, accountID *uuid.UUID) error {
	ok, err := t.lim.CheckAndRecord(ctx, key, t.policies.Get(action))
	if err != nil {
		return fmt.Errorf("rate limit %s: %w", action, err)
	}
	if ok {
		return nil
	}
	if t.denials != nil {
		t.denials.RateLimited(action)
	}
	t.events.Record(ctx, model.EventRateLimitExceeded, ip, accountID, "Action: "+strings.TrimPrefix(action, "critical_"))
	return errs.ErrRateLimited
}
