package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// UserID returns the authenticated user id stored by Middleware.
func UserID(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(UserIDKey).(uint)
	return id, ok && id != 0
}

// Middleware rejects requests to operations that declare a security
// requirement unless they carry a valid bearer token.
func (h *AuthHandler) Middleware(api huma.API) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if len(ctx.Operation().Security) == 0 {
			next(ctx)
			return
		}

		header := ctx.Header("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "Unauthorized: No token found")
			return
		}

		userID, err := h.ParseToken(tokenString)
		if err != nil {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "Unauthorized: Invalid token")
			return
		}

		next(huma.WithValue(ctx, UserIDKey, userID))
	}
}
