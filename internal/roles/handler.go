package roles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldgate/fieldgate/internal/platform/httpx"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// GuardMiddleware supplies the authentication gates the role routes mount.
type GuardMiddleware interface {
	RequireUser(next http.Handler) http.Handler
	RequireElevated(next http.Handler) http.Handler
	Principal(r *http.Request) (Actor, bool)
}

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	hierarchy *Hierarchy
	guard     GuardMiddleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, hierarchy *Hierarchy, guard GuardMiddleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		hierarchy: hierarchy,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/signup-roles", h.listSignupRoles)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Get("/", h.listRoles)
		r.Get("/creatable", h.listCreatable)
		r.Get("/by-name/{name}", h.getRoleByName)
		r.Get("/{roleID}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireElevated)
		r.Post("/", h.createRole)
		r.Put("/{roleID}", h.updateRole)
		r.Delete("/{roleID}", h.deleteRole)
	})
}

type roleRequest struct {
	Name                string  `json:"name" validate:"required"`
	Description         string  `json:"description"`
	RegistrationAllowed bool    `json:"registration_allowed"`
	RegistrationByRoles []int64 `json:"registration_by_roles"`
}

type roleResponse struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	Description         string  `json:"description"`
	RegistrationAllowed bool    `json:"registration_allowed"`
	RegistrationByRoles []int64 `json:"registration_by_roles"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:                  role.ID,
		Name:                role.Name,
		Description:         role.Description,
		RegistrationAllowed: role.RegistrationAllowed,
		RegistrationByRoles: role.RegistrationByRoles,
	}
}

func toRoleResponses(roles []Role) []roleResponse {
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = toRoleResponse(role)
	}
	return out
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "role name is required"))
		return
	}
	role, err := h.service.Create(r.Context(), CreateRoleInput{
		Name:                req.Name,
		Description:         req.Description,
		RegistrationAllowed: req.RegistrationAllowed,
		RegistrationByRoles: req.RegistrationByRoles,
	})
	if err != nil {
		h.logger.Warn("create role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponses(list))
}

func (h *Handler) listSignupRoles(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.SignupRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponses(list))
}

func (h *Handler) listCreatable(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.guard.Principal(r)
	if !ok {
		httpx.RespondError(w, shared.Fail(shared.ErrForbidden, "not authenticated"))
		return
	}
	list, err := h.hierarchy.CreatableBy(r.Context(), actor.RoleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponses(list))
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid role id"))
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) getRoleByName(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid role id"))
		return
	}
	var req struct {
		Name                *string `json:"name"`
		Description         *string `json:"description"`
		RegistrationAllowed *bool   `json:"registration_allowed"`
		RegistrationByRoles []int64 `json:"registration_by_roles"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "malformed request body"))
		return
	}
	role, err := h.service.Update(r.Context(), id, UpdateRoleInput{
		Name:                req.Name,
		Description:         req.Description,
		RegistrationAllowed: req.RegistrationAllowed,
		RegistrationByRoles: req.RegistrationByRoles,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid role id"))
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
