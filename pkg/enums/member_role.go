package enums

import (
	"fmt"
	"slices"
	"strings"
)

// MemberRole is the role claim carried by access tokens.
type MemberRole string

const (
	MemberRoleMember  MemberRole = "member"
	MemberRoleManager MemberRole = "manager"
	MemberRoleAdmin   MemberRole = "admin"
)

var memberRoles = []MemberRole{MemberRoleMember, MemberRoleManager, MemberRoleAdmin}

func (m MemberRole) String() string {
	return string(m)
}

func (m MemberRole) IsValid() bool {
	return slices.Contains(memberRoles, m)
}

// IsStaff reports whether the role may list, delete and report on every
// payment order.
func (m MemberRole) IsStaff() bool {
	return m == MemberRoleAdmin || m == MemberRoleManager
}

// ParseMemberRole is case-insensitive; token claims from older issuers were
// upper-cased.
func ParseMemberRole(value string) (MemberRole, error) {
	role := MemberRole(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid member role %q", value)
	}
	return role, nil
}
