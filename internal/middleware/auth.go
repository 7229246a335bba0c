package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/schoolresults/server/internal/apperr"
)

type contextKey string

const adminIDKey contextKey = "admin_id"

// AdminTokenHeader carries the opaque admin session token
const AdminTokenHeader = "X-Admin-Token"

// SessionVerifier resolves an admin session token to the admin id
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (uuid.UUID, error)
}

// AdminSession rejects requests without a valid admin session and attaches the admin id to
// the context. The token must be sent with every request.
func AdminSession(verifier SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			adminID, err := verifier.Verify(r.Context(), SessionToken(r))
			if err != nil {
				kind := apperr.KindOf(err)
				RespondWithError(w, r, apperr.StatusCode(kind), apperr.Message(err))
				return
			}

			ctx := context.WithValue(r.Context(), adminIDKey, adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionToken extracts the admin token from X-Admin-Token, falling back to a Bearer header
func SessionToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(AdminTokenHeader)); token != "" {
		return token
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetAdminID extracts the admin id set by AdminSession
func GetAdminID(ctx context.Context) (uuid.UUID, bool) {
	adminID, ok := ctx.Value(adminIDKey).(uuid.UUID)
	return adminID, ok
}
