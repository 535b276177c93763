package authz

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/schoolhub/schoolhub/internal/shared"
)

// Middleware wires principal resolution and coarse action gates for HTTP
// handlers. Fine-grained scope filtering stays in the handlers via Decide.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequirePrincipal resolves the session user into a Principal and stores
// it in the request context. Requests without a usable role are rejected
// as unauthenticated.
func (m Middleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := shared.CurrentUserID(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		principal, err := m.Service.ResolvePrincipal(r.Context(), userID)
		if err != nil {
			if errors.Is(err, ErrNoRoleAvailable) || errors.Is(err, shared.ErrNotFound) {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if m.Logger != nil {
				m.Logger.Error("resolve principal", slog.Int64("user_id", userID), slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireAction gates a route on the catalog: the active role must be
// permitted to perform verb on resource at all. Scope is not consulted
// here; handlers apply the Decide filter themselves.
func (m Middleware) RequireAction(resource ResourceType, verb Verb) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !ActionPermitted(principal.ActiveRole, resource, verb) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
