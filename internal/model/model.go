// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the authorization level stored on a profile.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleUser     Role = "user"
	// RoleNone is returned for unknown or deactivated accounts.
	RoleNone Role = ""
)

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleUser:
		return true
	}
	return false
}

// Account is the identity record. Accounts are deactivated rather than deleted.
type Account struct {
	ID           uuid.UUID
	Email        string // unique
	PasswordHash string // argon2id or legacy bcrypt encoding
	Active       bool
	CreatedAt    time.Time
}

// Profile holds the authoritative role and display data (1:1 with Account).
type Profile struct {
	ID                   uuid.UUID
	AccountID            uuid.UUID
	FullName             string
	Role                 Role
	WhatsApp             *string
	ReceiveNotifications bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Identity is the revalidation view of an account: the only input for authorization.
type Identity struct {
	AccountID uuid.UUID
	Email     string
	FullName  string
	Active    bool
	Role      Role
}

// Credentials is the login view of an account.
type Credentials struct {
	AccountID    uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	Active       bool
	Role         Role
}

// Claims is the verified content of a session token.
// Role is a snapshot taken at issuance and is advisory only: it must never be
// used for an authorization decision without revalidation against the profile.
type Claims struct {
	AccountID uuid.UUID
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Tokens collects an issued access token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// UserUpdate is an admin-side partial update; nil fields are left untouched.
type UserUpdate struct {
	FullName *string
	Role     *Role
	WhatsApp *string
	Active   *bool
}

// Empty reports whether the update carries no field.
func (u UserUpdate) Empty() bool {
	return u.FullName == nil && u.Role == nil && u.WhatsApp == nil && u.Active == nil
}

// ProfileUpdate is a self-service profile change.
type ProfileUpdate struct {
	FullName             string
	WhatsApp             *string
	ReceiveNotifications bool
}

// Invitation is the result of an admin invite; TempPassword is shown once.
type Invitation struct {
	AccountID    uuid.UUID
	Email        string
	TempPassword string
}

// ResourceKind names an owned resource table.
type ResourceKind string

const (
	ResourceFile     ResourceKind = "file"
	ResourceGroup    ResourceKind = "group"
	ResourceCategory ResourceKind = "category"
)

// MembershipAction selects how a member list is applied to a group.
type MembershipAction string

const (
	MembershipSet    MembershipAction = "set"
	MembershipAdd    MembershipAction = "add"
	MembershipRemove MembershipAction = "remove"
)

// Valid reports whether a is a known membership action.
func (a MembershipAction) Valid() bool {
	switch a {
	case MembershipSet, MembershipAdd, MembershipRemove:
		return true
	}
	return false
}

// GroupMember is a row of a group's member list.
type GroupMember struct {
	AccountID uuid.UUID
	Email     string
	FullName  string
	Role      Role
}

// FilePermission grants access to a file to a user, a group or a category (exactly one set).
type FilePermission struct {
	AccountID  *uuid.UUID
	GroupID    *uuid.UUID
	CategoryID *uuid.UUID
}

// FileMeta describes an uploaded file record.
type FileMeta struct {
	ID          uuid.UUID
	Title       string
	Description string
	FileURL     string
	FileType    string
	FileSize    int64
	UploadedBy  uuid.UUID
	Permissions []FilePermission
	CreatedAt   time.Time
}

// Category labels files so access can be granted to everything in it.
type Category struct {
	ID          uuid.UUID
	Name        string
	Description *string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
}

// CategoryUpdate replaces a category's name and description.
type CategoryUpdate struct {
	Name        string
	Description *string
}

// Group is a named set of accounts.
type Group struct {
	ID          uuid.UUID
	Name        string
	Description *string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
}

// GroupUpdate replaces a group's name and description.
type GroupUpdate struct {
	Name        string
	Description *string
}

// Actor is the request-scoped identity after revalidation. Role comes from the
// profile, never from the token.
type Actor struct {
	AccountID uuid.UUID
	Email     string
	Role      Role
	IP        string
}
