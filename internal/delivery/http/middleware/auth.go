package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	h "eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// WebhookTokenHeader carries the shared secret gateways send with payment callbacks.
const WebhookTokenHeader = "X-Webhook-Token"

// SetIdentity returns a context carrying the authenticated identity. Used by the auth middleware.
func SetIdentity(ctx context.Context, identity *domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the authenticated identity from the context, if present.
func IdentityFromContext(ctx context.Context) (*domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*domain.Identity)
	return identity, ok && identity != nil
}

// UserIDFromContext returns the authenticated user ID from the context, if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.UserID == "" {
		return "", false
	}
	return identity.UserID, true
}

// RequireAuth returns a wrapper that authenticates the Bearer token through auth and sets the
// identity in the request context. If the token is missing or cannot be verified, it responds
// with 401 and does not call next.
func RequireAuth(auth domain.Authenticator, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "missing or malformed authorization header")
				return
			}
			identity := auth.Authenticate(r.Context(), token)
			if identity == nil {
				logger.WarnContext(r.Context(), "authentication failed", "path", r.URL.Path)
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid or expired token")
				return
			}
			next(w, r.WithContext(SetIdentity(r.Context(), identity)))
		}
	}
}

// OptionalAuth is RequireAuth without the rejection: requests without a verifiable token
// reach next anonymously.
func OptionalAuth(auth domain.Authenticator) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if identity := auth.Authenticate(r.Context(), token); identity != nil {
					r = r.WithContext(SetIdentity(r.Context(), identity))
				}
			}
			next(w, r)
		}
	}
}

// RequireWebhookToken rejects callbacks whose X-Webhook-Token does not match secret.
// An empty secret disables the check.
func RequireWebhookToken(secret string, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(WebhookTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				logger.WarnContext(r.Context(), "webhook token rejected", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid webhook token")
				return
			}
			next(w, r)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	return domain.BearerToken(r.Header.Get("Authorization"))
}
