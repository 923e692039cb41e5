// Package store persists administrator and profile rows.
//
// Both stores report a missing row as sentinel.ErrNotFound and a missing
// relation as sentinel.ErrTableMissing. Role strings are parsed on read;
// an unrecognised value is returned as an error rather than passed through.
package store

import (
	"chapel/pkg/domain"
)

// parseProfileRole treats NULL/empty as the default user role.
func parseProfileRole(raw string) (domain.Role, error) {
	if raw == "" {
		return domain.RoleUser, nil
	}
	return domain.ParseRole(raw)
}
