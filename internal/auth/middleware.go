package auth

import (
	"context"
	"net/http"
	"strings"

	"dashboard-auth/internal/token"
)

type contextKey string

const userIDKey contextKey = "auth.user_id"

// UserID extracts the authenticated user id set by Middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// Middleware guards a route with a bearer access token. Only the access kind
// passes; initial, refresh, and google tokens are rejected.
func Middleware(forge *token.Forge, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		userID, err := forge.Verify(strings.TrimSpace(parts[1]), token.KindAccess)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}
