package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// EventType is the closed set of security events written to the audit trail.
type EventType string

const (
	EventSuccessfulLogin            EventType = "successful_login"
	EventFailedLogin                EventType = "failed_login"
	EventInvalidLoginAttempt        EventType = "invalid_login_attempt"
	EventRateLimitExceeded          EventType = "rate_limit_exceeded"
	EventInvalidToken               EventType = "invalid_token"
	EventInvalidFileUpload          EventType = "invalid_file_upload"
	EventUnauthorizedAdminAccess    EventType = "unauthorized_admin_access"
	EventUnauthorizedResourceAccess EventType = "unauthorized_resource_access"
	EventInactiveUserAccess         EventType = "inactive_user_access"
	EventInvalidUserRevalidation    EventType = "invalid_user_revalidation"
	EventGroupMembersUpdated        EventType = "group_members_updated"
	EventGroupUpdated               EventType = "group_updated"
	EventUserUpdated                EventType = "user_updated"
)

// EventTypes lists every recognized event type.
var EventTypes = []EventType{
	EventSuccessfulLogin,
	EventFailedLogin,
	EventInvalidLoginAttempt,
	EventRateLimitExceeded,
	EventInvalidToken,
	EventInvalidFileUpload,
	EventUnauthorizedAdminAccess,
	EventUnauthorizedResourceAccess,
	EventInactiveUserAccess,
	EventInvalidUserRevalidation,
	EventGroupMembersUpdated,
	EventGroupUpdated,
	EventUserUpdated,
}

// Valid reports whether t belongs to the closed set.
func (t EventType) Valid() bool {
	for _, v := range EventTypes {
		if v == t {
			return true
		}
	}
	return false
}

// SecurityEvent is an append-only audit row.
type SecurityEvent struct {
	ID        string // ULID, time ordered
	Type      EventType
	ActorIP   string
	AccountID *uuid.UUID
	Details   string
	CreatedAt time.Time
}

// EventFilter narrows a security event listing.
type EventFilter struct {
	Type      *EventType
	AccountID *uuid.UUID
	Since     *time.Time
	Limit     int // default 100, max 1000
}
