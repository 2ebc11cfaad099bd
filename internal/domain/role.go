package domain

import (
	"fmt"
	"strings"
)

// Role is a team capability.
type Role uint8

const (
	RoleUser Role = 1 << iota
	RoleAdmin
)

// ParseRole parses "user" or "admin".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// RoleSet is the set of capabilities a membership carries. Admin always
// implies user.
type RoleSet uint8

// RolesFor returns the role set granted by role.
func RolesFor(r Role) RoleSet {
	if r == RoleAdmin {
		return RoleSet(RoleUser | RoleAdmin)
	}
	return RoleSet(RoleUser)
}

// Has reports whether the set contains r.
func (s RoleSet) Has(r Role) bool {
	return s&RoleSet(r) != 0
}

// PlatformRoles renders the set as Mattermost team roles.
func (s RoleSet) PlatformRoles() string {
	roles := []string{"team_user"}
	if s.Has(RoleAdmin) {
		roles = append(roles, "team_admin")
	}
	return strings.Join(roles, " ")
}

// ParsePlatformRoles reads a Mattermost roles string.
func ParsePlatformRoles(roles string) RoleSet {
	var s RoleSet
	for _, r := range strings.Fields(roles) {
		switch r {
		case "team_user":
			s |= RoleSet(RoleUser)
		case "team_admin":
			s |= RoleSet(RoleUser | RoleAdmin)
		}
	}
	return s
}
