package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/schoolhub/schoolhub/internal/platform/httpx"
	"github.com/schoolhub/schoolhub/internal/shared"
)

// ScanScheduler queues background grant integrity scans. Satisfied by
// *jobs.Client.
type ScanScheduler interface {
	EnqueueGrantIntegrityScan(ctx context.Context) error
}

// Handler exposes the role picker, role switching, and grant
// administration over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	scans     ScanScheduler
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, scans ScanScheduler) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		scans:     scans,
		validator: validator.New(),
	}
}

// MountRoutes registers authorization routes. The router is expected to
// run RequirePrincipal beforehand.
func (h *Handler) MountRoutes(r chi.Router, mw Middleware) {
	switchLimiter := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))

	r.Get("/me/roles", h.listOwnGrants)
	r.With(switchLimiter).Post("/me/switch-role", h.switchRole)

	r.Route("/users/{userID}/grants", func(r chi.Router) {
		r.Use(mw.RequireAction(ResourceUsers, VerbUpdate))
		r.Post("/", h.addGrant)
		r.Delete("/{grantID}", h.removeGrant)
	})

	r.With(mw.RequireAction(ResourceUsers, VerbDelete)).
		Post("/admin/integrity-scan", h.triggerIntegrityScan)
}

type grantPayload struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	Role     string `json:"role"`
	SchoolID *int64 `json:"school_id,omitempty"`
	ClassID  *int64 `json:"class_id,omitempty"`
}

type principalPayload struct {
	UserID         int64          `json:"user_id"`
	PrimaryRole    string         `json:"primary_role"`
	ActiveRole     string         `json:"active_role"`
	ActiveSchoolID *int64         `json:"active_school_id,omitempty"`
	ActiveClassID  *int64         `json:"active_class_id,omitempty"`
	Grants         []grantPayload `json:"grants"`
}

func toPrincipalPayload(p Principal) principalPayload {
	out := principalPayload{
		UserID:         p.UserID,
		PrimaryRole:    string(p.PrimaryRole),
		ActiveRole:     string(p.ActiveRole),
		ActiveSchoolID: p.ActiveSchoolID,
		ActiveClassID:  p.ActiveClassID,
		Grants:         make([]grantPayload, 0, len(p.Grants)),
	}
	for _, g := range p.Grants {
		out.Grants = append(out.Grants, grantPayload{
			ID:       g.ID,
			UserID:   g.UserID,
			Role:     string(g.Role),
			SchoolID: g.SchoolID,
			ClassID:  g.ClassID,
		})
	}
	return out
}

func (h *Handler) listOwnGrants(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	grants, err := h.service.ListGrants(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("list grants", slog.Int64("user_id", principal.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	principal.Grants = grants
	httpx.JSON(w, http.StatusOK, toPrincipalPayload(principal))
}

type switchRoleForm struct {
	Role     string `json:"role" validate:"required"`
	SchoolID *int64 `json:"school_id"`
	ClassID  *int64 `json:"class_id"`
}

func (h *Handler) switchRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var form switchRoleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	role, err := ParseRole(form.Role)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Role Not Granted", err.Error())
		return
	}
	next, err := h.service.SwitchActiveRole(r.Context(), principal, role, form.SchoolID, form.ClassID)
	if err != nil {
		if errors.Is(err, ErrRoleNotGranted) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Role Not Granted", err.Error())
			return
		}
		h.logger.Error("switch role", slog.Int64("user_id", principal.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPrincipalPayload(next))
}

type addGrantForm struct {
	Role     string `json:"role" validate:"required"`
	SchoolID *int64 `json:"school_id"`
	ClassID  *int64 `json:"class_id"`
}

func (h *Handler) addGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var form addGrantForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	role, err := ParseRole(form.Role)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	grant := RoleGrant{UserID: userID, Role: role, SchoolID: form.SchoolID, ClassID: form.ClassID}
	if !h.actorMayAdminister(actor, grant.SchoolID) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	stored, err := h.service.AddGrant(r.Context(), actor.UserID, grant)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("add grant", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grantPayload{
		ID:       stored.ID,
		UserID:   stored.UserID,
		Role:     string(stored.Role),
		SchoolID: stored.SchoolID,
		ClassID:  stored.ClassID,
	})
}

func (h *Handler) removeGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	grantID, err := strconv.ParseInt(chi.URLParam(r, "grantID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.RemoveGrant(r.Context(), actor.UserID, userID, grantID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("remove grant", slog.Int64("grant_id", grantID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) triggerIntegrityScan(w http.ResponseWriter, r *http.Request) {
	if h.scans == nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.scans.EnqueueGrantIntegrityScan(r.Context()); err != nil {
		h.logger.Error("enqueue integrity scan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// actorMayAdminister limits grant administration to the actor's own
// school unless the active role is platform-wide.
func (h *Handler) actorMayAdminister(actor Principal, schoolID *int64) bool {
	if actor.ActiveRole == RoleSuperAdmin {
		return true
	}
	if actor.ActiveSchoolID == nil || schoolID == nil {
		return false
	}
	return *actor.ActiveSchoolID == *schoolID
}
