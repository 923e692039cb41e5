package gate

import (
	"errors"
	"net/http"

	"chapel/internal/authz"
	"chapel/internal/identity"
	"chapel/pkg/domain"
)

// Rejection codes written in the `code` field of the error body.
const (
	CodeAuthHeaderMissing = "AUTH_HEADER_MISSING"
	CodeAuthHeaderInvalid = "AUTH_HEADER_INVALID"
	CodeTokenEmpty        = "TOKEN_EMPTY"
	CodeTokenInvalid      = "TOKEN_INVALID"
	CodeUserNotFound      = "USER_NOT_FOUND"
	CodeAdminTableMissing = "ADMIN_TABLE_MISSING"
	CodeLookupError       = "LOOKUP_ERROR"
	CodeNotAdmin          = "NOT_ADMIN"
	CodeInsufficientRole  = "INSUFFICIENT_ROLE"
	CodeRoleRequired      = "ROLE_REQUIRED"
	CodeAuthFailed        = "AUTH_FAILED"
)

// rejection is a terminal gate decision. cause is logged, never written.
type rejection struct {
	status  int
	code    string
	message string
	cause   error
}

func reject(status int, code, message string) *rejection {
	return &rejection{status: status, code: code, message: message}
}

func (r *rejection) withCause(err error) *rejection {
	r.cause = err
	return r
}

func errHeaderMissing() *rejection {
	return reject(http.StatusUnauthorized, CodeAuthHeaderMissing, "Authorization header is required")
}

func errHeaderInvalid() *rejection {
	return reject(http.StatusUnauthorized, CodeAuthHeaderInvalid, "Authorization header must use the Bearer scheme")
}

func errTokenEmpty() *rejection {
	return reject(http.StatusUnauthorized, CodeTokenEmpty, "Bearer token is empty")
}

func errNotAdmin() *rejection {
	return reject(http.StatusForbidden, CodeNotAdmin, "Administrator access required")
}

func errInsufficientRole() *rejection {
	return reject(http.StatusForbidden, CodeInsufficientRole, "Insufficient role")
}

func errRoleRequired(allowed []domain.Role) *rejection {
	return reject(http.StatusForbidden, CodeRoleRequired, "Required role: "+domain.JoinRoles(allowed))
}

func errAuthFailed(cause error) *rejection {
	return reject(http.StatusInternalServerError, CodeAuthFailed, "Authentication failed").withCause(cause)
}

// fromVerifyError classifies identity provider failures.
func fromVerifyError(err error) *rejection {
	switch {
	case errors.Is(err, identity.ErrTokenInvalid):
		return reject(http.StatusUnauthorized, CodeTokenInvalid, "Invalid or expired token").withCause(err)
	case errors.Is(err, identity.ErrUserNotFound):
		return reject(http.StatusUnauthorized, CodeUserNotFound, "User not found").withCause(err)
	default:
		return errAuthFailed(err)
	}
}

// fromResolveError classifies role lookup failures. A missing profile table
// is reported as a lookup error; only the administrator table has its own code.
func fromResolveError(err error) *rejection {
	if errors.Is(err, authz.ErrAdminTableMissing) {
		return reject(http.StatusInternalServerError, CodeAdminTableMissing, "Authorization is not configured").withCause(err)
	}
	return reject(http.StatusInternalServerError, CodeLookupError, "Failed to resolve user role").withCause(err)
}
