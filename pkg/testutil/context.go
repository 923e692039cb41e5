package testutil

import (
	"net/http"

	"chapel/pkg/domain"
	"chapel/pkg/requestcontext"
)

// WithPrincipal simulates a request the authorization gate has already accepted.
func WithPrincipal(req *http.Request, userID, email string, role domain.Role) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), requestcontext.Principal{
		UserID: userID,
		Email:  email,
		Name:   "Test " + string(role),
		Role:   role,
	})
	return req.WithContext(ctx)
}
