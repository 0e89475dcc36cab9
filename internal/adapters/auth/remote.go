package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"eventregistration/internal/domain"
)

// tokenInfo is the identity provider's token introspection response.
type tokenInfo struct {
	Sub   string   `json:"sub"`
	UID   string   `json:"uid"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	Exp   int64    `json:"exp"`
}

type httpVerifier struct {
	client *http.Client
	url    string
}

// NewHTTPVerifier returns a TokenVerifier that asks the identity provider at url to decode
// the token. The token is forwarded as a bearer credential; any non-200 answer is a failure.
func NewHTTPVerifier(client *http.Client, url string) domain.TokenVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpVerifier{client: client, url: url}
}

func (v *httpVerifier) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call identity provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned status: %d", resp.StatusCode)
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode identity provider response: %w", err)
	}
	userID := info.Sub
	if userID == "" {
		userID = info.UID
	}
	if userID == "" {
		return nil, fmt.Errorf("identity provider response has no subject")
	}
	identity := &domain.Identity{
		UserID: userID,
		Email:  info.Email,
		Name:   info.Name,
		Roles:  info.Roles,
	}
	if info.Exp > 0 {
		identity.ExpiresAt = time.Unix(info.Exp, 0)
	}
	return identity, nil
}
