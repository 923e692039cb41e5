package main

import (
	"context"
	"fmt"
	"net/http"

	"chapel/internal/gate"
	"chapel/internal/identity/firebase"
	"chapel/internal/identity/supabase"
	"chapel/internal/identity/supabasejwt"
	"chapel/internal/platform/config"
	"chapel/internal/promote"
)

// buildVerifier selects the single identity backend named by IDENTITY_PROVIDER.
func buildVerifier(ctx context.Context, cfg *config.Server, client *http.Client) (gate.IdentityVerifier, error) {
	switch cfg.IdentityProvider {
	case config.ProviderSupabase:
		return supabase.NewVerifier(cfg.SupabaseURL, cfg.SupabaseAnonKey, client), nil
	case config.ProviderSupabaseJWT:
		return supabasejwt.New(cfg.SupabaseJWTSecret), nil
	case config.ProviderFirebase:
		return firebase.New(ctx, cfg.FirebaseProjectID), nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", cfg.IdentityProvider)
	}
}

// buildClaimsWriter returns the GoTrue admin client when a service role key is
// configured, and nil otherwise.
func buildClaimsWriter(cfg *config.Server, client *http.Client) promote.ClaimsWriter {
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceRoleKey == "" {
		return nil
	}
	return supabase.NewAdmin(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, client)
}
