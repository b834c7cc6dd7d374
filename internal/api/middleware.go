package api

import (
	"context"
	"net/http"

	"techpaint/internal/models"
	"techpaint/internal/ws"
)

type contextKey struct{}

func userFromContext(ctx context.Context) models.User {
	u, _ := ctx.Value(contextKey{}).(models.User)
	return u
}

// RequireAuth resolves the request token to a user and stores it in the
// request context. Unauthenticated requests get 401.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := a.auth.Authenticate(ws.TokenFromRequest(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	}
}

// RequireSameOrigin rejects browser requests whose Origin header does not
// match the request host. Requests without Origin (CLI, curl) pass.
func RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ws.SameOrigin(r) {
			writeError(w, http.StatusForbidden, "Cross-origin request rejected")
			return
		}
		next(w, r)
	}
}
