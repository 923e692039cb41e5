// Package supabase verifies access tokens against the Supabase auth (GoTrue)
// API and manages role claims through its admin endpoints.
package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"chapel/internal/identity"
)

// Verifier resolves tokens by calling GET /auth/v1/user.
type Verifier struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewVerifier builds a Verifier. A nil client falls back to http.DefaultClient.
func NewVerifier(baseURL, anonKey string, client *http.Client) *Verifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Verifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: client,
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verify implements identity.Provider.
func (v *Verifier) Verify(ctx context.Context, token string) (*identity.Identity, error) {
	if token == "" {
		return nil, identity.ErrTokenInvalid
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.anonKey)
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call supabase auth: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, identity.ErrTokenInvalid
	case resp.StatusCode == http.StatusNotFound:
		return nil, identity.ErrUserNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("supabase auth returned status %d", resp.StatusCode)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode supabase user: %w", err)
	}
	if user.ID == "" {
		return nil, identity.ErrUserNotFound
	}
	return &identity.Identity{ID: user.ID, Email: user.Email}, nil
}

// Admin updates user metadata with the service-role key.
type Admin struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewAdmin builds an Admin client. A nil client falls back to http.DefaultClient.
func NewAdmin(baseURL, serviceKey string, client *http.Client) *Admin {
	if client == nil {
		client = http.DefaultClient
	}
	return &Admin{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: client,
	}
}

type updateUserRequest struct {
	AppMetadata map[string]string `json:"app_metadata"`
}

// SetRole stores role in the user's app_metadata so newly issued tokens carry it.
func (a *Admin) SetRole(ctx context.Context, userID, role string) error {
	body, err := json.Marshal(updateUserRequest{AppMetadata: map[string]string{"role": role}})
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	endpoint := a.baseURL + "/auth/v1/admin/users/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.serviceKey)
	req.Header.Set("apikey", a.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call supabase admin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return identity.ErrUserNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("supabase admin returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
