package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/schoolhub/schoolhub/internal/authz"
	"github.com/schoolhub/schoolhub/internal/platform/httpx"
)

// Handler exposes the scoped user directory.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers directory routes. RequirePrincipal must run first.
func (h *Handler) MountRoutes(r chi.Router, mw authz.Middleware) {
	r.With(mw.RequireAction(authz.ResourceUsers, authz.VerbList)).Get("/users", h.list)
}

type userPayload struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PrimaryRole string `json:"primary_role,omitempty"`
	SchoolID    *int64 `json:"school_id,omitempty"`
	IsActive    bool   `json:"is_active"`
}

type listResponse struct {
	Users      []userPayload `json:"users"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filters := ListFilters{Search: r.URL.Query().Get("q")}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		filters.Page = page
	}
	if perPage, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil {
		filters.PerPage = perPage
	}

	result, err := h.service.List(r.Context(), principal, filters)
	if err != nil {
		if errors.Is(err, authz.ErrRoleNotPermitted) {
			httpx.RespondError(w, httpx.ErrForbidden)
			return
		}
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := listResponse{
		Users:      make([]userPayload, 0, len(result.Users)),
		Page:       result.Pagination.Page,
		PerPage:    result.Pagination.PerPage,
		Total:      result.Pagination.Total,
		TotalPages: result.Pagination.TotalPages,
	}
	for _, u := range result.Users {
		resp.Users = append(resp.Users, userPayload{
			ID:          u.ID,
			Email:       u.Email,
			DisplayName: u.DisplayName,
			PrimaryRole: u.PrimaryRole,
			SchoolID:    u.SchoolID,
			IsActive:    u.IsActive,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}
