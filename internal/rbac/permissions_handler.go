package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldgate/fieldgate/internal/platform/httpx"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// PermissionsHandler exposes permission CRUD and role-permission mapping
// endpoints for administrators.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	guard     func(http.Handler) http.Handler
	validator *validator.Validate
}

// NewPermissionsHandler builds a PermissionsHandler. guard should restrict
// access to elevated actors.
func NewPermissionsHandler(logger *slog.Logger, service *Service, guard func(http.Handler) http.Handler) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard)
		r.Post("/", h.createPermission)
		r.Get("/", h.listPermissions)
		r.Get("/roles/{roleID}", h.listForRole)
		r.Post("/roles/{roleID}/{permissionID}", h.assign)
		r.Delete("/roles/{roleID}/{permissionID}", h.revoke)
	})
}

type permissionRequest struct {
	TableName   string `json:"table_name" validate:"required"`
	Method      string `json:"method" validate:"required"`
	Description string `json:"description"`
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	TableName   string `json:"table_name"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

func toPermissionResponses(perms []Permission) []permissionResponse {
	out := make([]permissionResponse, len(perms))
	for i, p := range perms {
		out[i] = permissionResponse{ID: p.ID, TableName: p.TableName, Method: p.Method, Description: p.Description}
	}
	return out
}

func (h *PermissionsHandler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "table name and method are required"))
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.TableName, req.Method, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{ID: perm.ID, TableName: perm.TableName, Method: perm.Method, Description: perm.Description})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponses(perms))
}

func (h *PermissionsHandler) listForRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid role id"))
		return
	}
	perms, err := h.service.PermissionsForRole(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponses(perms))
}

func (h *PermissionsHandler) assign(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, err := h.pathIDs(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Assign(r.Context(), roleID, permissionID); err != nil {
		h.logger.Warn("assign permission", slog.Int64("role_id", roleID), slog.Int64("permission_id", permissionID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "assigned"})
}

func (h *PermissionsHandler) revoke(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, err := h.pathIDs(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Revoke(r.Context(), roleID, permissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *PermissionsHandler) pathIDs(r *http.Request) (int64, int64, error) {
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		return 0, 0, shared.Fail(shared.ErrInvalidInput, "invalid role id")
	}
	permissionID, err := strconv.ParseInt(chi.URLParam(r, "permissionID"), 10, 64)
	if err != nil {
		return 0, 0, shared.Fail(shared.ErrInvalidInput, "invalid permission id")
	}
	return roleID, permissionID, nil
}
