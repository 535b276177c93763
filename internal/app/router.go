package app

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/schoolhub/schoolhub/internal/auth"
	"github.com/schoolhub/schoolhub/internal/authz"
	"github.com/schoolhub/schoolhub/internal/schedules"
	"github.com/schoolhub/schoolhub/internal/shared"
	"github.com/schoolhub/schoolhub/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	AuthzHandler     *authz.Handler
	AuthzMiddleware  authz.Middleware
	UsersHandler     *users.Handler
	SchedulesHandler *schedules.Handler
}

// NewRouter constructs the chi.Router with schoolhub defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Clients fetch a token here and echo it back in X-CSRF-Token on
	// mutating requests.
	r.Get("/csrf-token", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		token, err := params.CSRFManager.EnsureToken(r.Context(), sess)
		if err != nil {
			params.Logger.Error("issue csrf token", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	})

	params.AuthHandler.MountRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthzMiddleware.RequirePrincipal)
		params.AuthzHandler.MountRoutes(r, params.AuthzMiddleware)
		params.UsersHandler.MountRoutes(r, params.AuthzMiddleware)
		params.SchedulesHandler.MountRoutes(r, params.AuthzMiddleware)
	})

	return r
}
