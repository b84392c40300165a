// Package directory defines the mutation surface shared by the local system of record
// and the external directory provider.
package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

var (
	ErrUserNotFound  = errors.New("directory user not found")
	ErrUserExists    = errors.New("directory user already exists")
	ErrGroupNotFound = errors.New("directory group not found")
)

// Group roles accepted by AddGroupMember.
const (
	RoleMember  = "MEMBER"
	RoleManager = "MANAGER"
	RoleOwner   = "OWNER"
)

// Directory applies single-record user and group mutations for one organization.
//
// Actions whose target state already holds succeed without change: suspending a suspended
// user, deleting a missing user, adding an existing member, removing an absent member and
// moving a user to the organizational unit it is already in.
type Directory interface {
	UpdateUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error
	CreateUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error
	SuspendUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error
	DeleteUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error
	AddGroupMember(ctx context.Context, orgID uuid.UUID, rec models.Record) error
	RemoveGroupMember(ctx context.Context, orgID uuid.UUID, rec models.Record) error
	MoveUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error
}

// User is a directory account as held by the local system of record.
type User struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	OrgUnitPath string `json:"org_unit_path"`
	Suspended   bool   `json:"suspended"`
}

// Apply copies the fields present in rec onto the user.
func (u *User) Apply(rec models.Record) {
	if rec.FirstName != "" {
		u.FirstName = rec.FirstName
	}
	if rec.LastName != "" {
		u.LastName = rec.LastName
	}
	if rec.OrgUnitPath != "" {
		u.OrgUnitPath = rec.OrgUnitPath
	}
	if rec.Suspended != nil {
		u.Suspended = *rec.Suspended
	}
}

// NewUser builds the account created by a user_create record.
func NewUser(rec models.Record) User {
	u := User{
		Email:       NormaliseEmail(rec.Email),
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		OrgUnitPath: rec.OrgUnitPath,
	}
	if u.OrgUnitPath == "" {
		u.OrgUnitPath = "/"
	}
	if rec.Suspended != nil {
		u.Suspended = *rec.Suspended
	}
	return u
}

// MemberRole returns the record's group role, defaulting to MEMBER.
func MemberRole(rec models.Record) string {
	if rec.Role == "" {
		return RoleMember
	}
	return strings.ToUpper(rec.Role)
}

// NormaliseEmail is the key used for users and groups.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
