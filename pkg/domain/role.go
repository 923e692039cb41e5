package domain

import (
	"strings"

	dErrors "chapel/pkg/domain-errors"
)

// Role is an authorization level stored on administrator and profile rows.
// This is a domain primitive: values outside the closed set are rejected at
// parse time rather than passed through.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleEditor     Role = "editor"
	RoleUser       Role = "user"
)

var knownRoles = map[Role]struct{}{
	RoleSuperAdmin: {},
	RoleAdmin:      {},
	RoleEditor:     {},
	RoleUser:       {},
}

// ParseRole validates a stored or requested role. Matching is exact and
// case-sensitive.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := knownRoles[r]; !ok {
		return "", dErrors.New(dErrors.CodeValidation, "unknown role: "+s)
	}
	return r, nil
}

// String returns the stored representation.
func (r Role) String() string {
	return string(r)
}

// IsAdmin reports whether the role grants administrator access.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// In reports whether r is a member of allowed.
func (r Role) In(allowed []Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}

// JoinRoles renders roles for messages, e.g. "admin, editor".
func JoinRoles(roles []Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
