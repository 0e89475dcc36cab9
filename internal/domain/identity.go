package domain

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Identity is the decoded claim set of a verified bearer token.
// swagger:model Identity
type Identity struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	ExpiresAt time.Time `json:"-"`
}

// Clone returns a deep copy of i.
func (i *Identity) Clone() *Identity {
	c := *i
	c.Roles = slices.Clone(i.Roles)
	return &c
}

// TokenVerifier exchanges a bearer token for an identity. Implementations call the
// identity provider (or check its signature) and may be slow or fail.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// TokenIssuer issues signed tokens. Used for local development and tests; production
// tokens come from the identity provider.
type TokenIssuer interface {
	Issue(userID, email string, roles []string, expiry time.Duration) (string, error)
}

// Authenticator resolves a bearer token to an identity. A nil identity means the token
// is missing, malformed, expired or could not be verified.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) *Identity
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
