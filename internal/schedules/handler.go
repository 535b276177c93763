package schedules

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/schoolhub/schoolhub/internal/authz"
	"github.com/schoolhub/schoolhub/internal/platform/httpx"
	"github.com/schoolhub/schoolhub/internal/shared"
)

// Handler exposes scoped schedule reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers schedule routes. RequirePrincipal must run first.
func (h *Handler) MountRoutes(r chi.Router, mw authz.Middleware) {
	r.Route("/schedules", func(r chi.Router) {
		r.With(mw.RequireAction(authz.ResourceSchedules, authz.VerbList)).Get("/", h.list)
		r.With(mw.RequireAction(authz.ResourceSchedules, authz.VerbView)).Get("/{scheduleID}", h.get)
	})
}

type schedulePayload struct {
	ID        int64  `json:"id"`
	SchoolID  int64  `json:"school_id"`
	ClassID   int64  `json:"class_id"`
	SubjectID int64  `json:"subject_id"`
	TeacherID int64  `json:"teacher_id"`
	Weekday   int    `json:"weekday"`
	Period    int    `json:"period"`
	Room      string `json:"room,omitempty"`
}

func toSchedulePayload(s Schedule) schedulePayload {
	return schedulePayload{
		ID:        s.ID,
		SchoolID:  s.SchoolID,
		ClassID:   s.ClassID,
		SubjectID: s.SubjectID,
		TeacherID: s.TeacherID,
		Weekday:   s.Weekday,
		Period:    s.Period,
		Room:      s.Room,
	}
}

type listResponse struct {
	Schedules  []schedulePayload `json:"schedules"`
	Page       int               `json:"page"`
	PerPage    int               `json:"per_page"`
	Total      int               `json:"total"`
	TotalPages int               `json:"total_pages"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var filters ListFilters
	if classID, err := strconv.ParseInt(r.URL.Query().Get("class_id"), 10, 64); err == nil {
		filters.ClassID = &classID
	}
	if weekday, err := strconv.Atoi(r.URL.Query().Get("weekday")); err == nil {
		filters.Weekday = &weekday
	}
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
		h.logger.Error("list schedules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := listResponse{
		Schedules:  make([]schedulePayload, 0, len(result.Schedules)),
		Page:       result.Pagination.Page,
		PerPage:    result.Pagination.PerPage,
		Total:      result.Pagination.Total,
		TotalPages: result.Pagination.TotalPages,
	}
	for _, s := range result.Schedules {
		resp.Schedules = append(resp.Schedules, toSchedulePayload(s))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "scheduleID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	sched, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		switch {
		// An out-of-scope row must be indistinguishable from a missing one.
		case errors.Is(err, shared.ErrNotFound), errors.Is(err, authz.ErrOutOfScope):
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, authz.ErrRoleNotPermitted):
			httpx.RespondError(w, httpx.ErrForbidden)
		default:
			h.logger.Error("get schedule", slog.Int64("schedule_id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, toSchedulePayload(sched))
}
