// Package auth verifies caller identity against the external identity
// provider. The provider is opaque: a bearer token goes in, a user comes out.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned for missing, malformed, or rejected tokens.
var ErrUnauthorized = errors.New("auth: invalid token")

// Identity is the verified caller.
type Identity struct {
	UserID string
	Email  string
}

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// HTTPVerifier calls the identity provider's user endpoint with the caller's
// token. It holds no session state; every request is verified fresh.
type HTTPVerifier struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewHTTPVerifier creates a verifier for the identity provider at baseURL.
func NewHTTPVerifier(baseURL, anonKey string) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify resolves the token via GET /auth/v1/user.
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.anonKey != "" {
		req.Header.Set("apikey", v.anonKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: verify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("auth: identity provider returned %d: %s", resp.StatusCode, body)
	}

	var user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("auth: decode user: %w", err)
	}
	if user.ID == "" {
		return nil, ErrUnauthorized
	}
	return &Identity{UserID: user.ID, Email: user.Email}, nil
}

// StaticVerifier maps tokens to user ids for tests.
type StaticVerifier map[string]string

// Verify looks the token up in the static map.
func (s StaticVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	userID, ok := s[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &Identity{UserID: userID}, nil
}

// BearerToken extracts the token from an Authorization header value.
// Returns "" when the header is missing or not a bearer scheme.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
