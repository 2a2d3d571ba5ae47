package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"neighborsos/internal/config"
	"neighborsos/internal/util"
)

// ErrUnauthenticated is returned when the token does not resolve to a
// signed-in user (missing, expired, or revoked).
var ErrUnauthenticated = errors.New("token did not resolve to a user")

// Resolver turns an access token into the holder's email address.
// Implemented against the hosted auth provider; tests substitute a
// fake.
type Resolver interface {
	ResolveEmail(ctx context.Context, token string) (string, error)
}

// SupabaseResolver resolves tokens against the GoTrue user endpoint.
// Each call is one outbound GET with a bounded deadline so a slow
// provider cannot hold a request open.
type SupabaseResolver struct {
	baseURL string
	anonKey string
	client  *http.Client
}

func NewSupabaseResolver(cfg *config.Config) *SupabaseResolver {
	timeout := cfg.Auth.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SupabaseResolver{
		baseURL: strings.TrimRight(cfg.Auth.ProviderURL, "/"),
		anonKey: cfg.Auth.AnonKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (r *SupabaseResolver) ResolveEmail(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build user lookup request: %w", err)
	}
	req.Header.Set("apikey", r.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("user lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrUnauthenticated
	default:
		util.Warn("Unexpected status from auth provider",
			zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("user lookup returned status %d", resp.StatusCode)
	}

	var user struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("failed to decode user response: %w", err)
	}
	if user.Email == "" {
		return "", ErrUnauthenticated
	}

	return strings.ToLower(strings.TrimSpace(user.Email)), nil
}
