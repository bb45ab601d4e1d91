package model

import "strings"

// Role is the single authorization axis used by the registration engine.
type Role string

const (
	RoleMember    Role = "member"
	RoleCommittee Role = "committee"
)

// ParseRole normalises a role claim. Unknown or empty values report ok=false so
// callers can fail closed.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleMember:
		return RoleMember, true
	case RoleCommittee:
		return RoleCommittee, true
	}
	return "", false
}

// Identity is the request-scoped caller resolved from a verified bearer token.
// It is passed explicitly into every engine operation.
//
// Fields:
//  UserID – subject claim issued by the identity provider.
//  Role   – member or committee.
//  Email  – optional email claim, used only for display.
//  Name   – optional name claim, used only for display.
type Identity struct {
	UserID string
	Role   Role
	Email  string
	Name   string
}

// IsCommittee reports whether the caller holds the committee role.
func (i Identity) IsCommittee() bool { return i.Role == RoleCommittee }

// Valid reports whether both the subject and a known role are present.
func (i Identity) Valid() bool {
	if i.UserID == "" {
		return false
	}
	_, ok := ParseRole(string(i.Role))
	return ok
}
