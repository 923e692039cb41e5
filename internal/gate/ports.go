package gate

import (
	"context"

	"chapel/internal/authz/models"
	"chapel/internal/identity"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// IdentityVerifier turns a bearer token into a verified identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Identity, error)
}

// RoleResolver reads authorization records. Both methods return (nil, nil)
// when the user has no row in that table.
type RoleResolver interface {
	ResolveAdmin(ctx context.Context, userID string) (*models.Record, error)
	ResolveProfile(ctx context.Context, userID string) (*models.Record, error)
}
