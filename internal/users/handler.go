package users

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fieldgate/fieldgate/internal/platform/httpx"
	"github.com/fieldgate/fieldgate/internal/roles"
	"github.com/fieldgate/fieldgate/internal/shared"
)

const maxPictureBytes = 8 << 20

// PermissionGate builds table/method authorization middleware. Satisfied by
// the permission matrix middleware.
type PermissionGate func(table, method string) func(http.Handler) http.Handler

// Blobs stores profile pictures. Satisfied by the media store.
type Blobs interface {
	Save(filename string, r io.Reader) (key string, sizeMB float64, err error)
	Open(key string) (io.ReadCloser, error)
	Remove(key string) error
}

// Handler manages account endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     roles.GuardMiddleware
	gate      PermissionGate
	blobs     Blobs
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard roles.GuardMiddleware, gate PermissionGate, blobs Blobs) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		gate:      gate,
		blobs:     blobs,
		validator: validator.New(),
	}
}

// MountRoutes registers account routes. Creation and listing rely on the
// role hierarchy inside the service; destructive routes additionally pass
// the table/method permission matrix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Post("/", h.createUser)
		r.Get("/me", h.me)
		r.Get("/by-role/{roleID}", h.listByRole)
		r.Get("/{userID}", h.getUser)
		r.Put("/{userID}", h.updateUser)
		r.Put("/{userID}/password", h.changePassword)
		r.Post("/{userID}/profile-picture", h.uploadPicture)
		r.Get("/{userID}/profile-picture", h.downloadPicture)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireElevated)
		r.With(h.gate("users", "update")).Post("/{userID}/deactivate", h.deactivateUser)
		r.With(h.gate("users", "update")).Post("/{userID}/activate", h.activateUser)
		r.With(h.gate("users", "delete")).Delete("/{userID}", h.deleteUser)
	})
}

type createUserRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	RoleID   int64  `json:"role_id" validate:"required"`
}

type userResponse struct {
	ID             uuid.UUID `json:"id"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	RoleID         int64     `json:"role_id"`
	RoleName       string    `json:"role_name,omitempty"`
	IsActive       bool      `json:"is_active"`
	ProfilePicture bool      `json:"has_profile_picture"`
}

func toUserResponse(user User) userResponse {
	return userResponse{
		ID:             user.ID,
		FullName:       user.FullName,
		Email:          user.Email,
		RoleID:         user.RoleID,
		IsActive:       user.IsActive,
		ProfilePicture: user.ProfilePicture != nil,
	}
}

func toUserWithRoleResponse(user WithRole) userResponse {
	out := toUserResponse(user.User)
	out.RoleName = user.RoleName
	return out
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (roles.Actor, bool) {
	actor, ok := h.guard.Principal(r)
	if !ok {
		httpx.RespondError(w, shared.Fail(shared.ErrForbidden, "not authenticated"))
	}
	return actor, ok
}

func userIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		return uuid.Nil, shared.Fail(shared.ErrInvalidInput, "invalid user id")
	}
	return id, nil
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "full_name, email, password and role_id are required"))
		return
	}
	user, err := h.service.Create(r.Context(), actor, CreateUserInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		RoleID:   req.RoleID,
	})
	if err != nil {
		h.logger.Warn("create user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), actor, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserWithRoleResponse(user))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserWithRoleResponse(user))
}

func (h *Handler) listByRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid role id"))
		return
	}
	list, err := h.service.ListByRole(r.Context(), actor, roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, len(list))
	for i, user := range list {
		out[i] = toUserResponse(user)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req struct {
		FullName *string `json:"full_name"`
		Email    *string `json:"email"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "malformed request body"))
		return
	}
	user, err := h.service.Update(r.Context(), actor, id, UpdateUserInput{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "malformed request body"))
		return
	}
	if err := h.service.ChangePassword(r.Context(), actor, id, req.CurrentPassword, req.NewPassword); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

func (h *Handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) activateUser(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetActive(r.Context(), actor, id, active); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) uploadPicture(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPictureBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "multipart field 'file' is required"))
		return
	}
	defer file.Close()

	key, _, err := h.blobs.Save(header.Filename, file)
	if err != nil {
		h.logger.Error("store profile picture", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	old, err := h.service.SetProfilePicture(r.Context(), actor, id, &key)
	if err != nil {
		if rerr := h.blobs.Remove(key); rerr != nil {
			h.logger.Warn("remove rejected picture", slog.String("key", key), slog.Any("error", rerr))
		}
		httpx.RespondError(w, err)
		return
	}
	if old != nil {
		if rerr := h.blobs.Remove(*old); rerr != nil {
			h.logger.Warn("remove replaced picture", slog.String("key", *old), slog.Any("error", rerr))
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "uploaded"})
}

func (h *Handler) downloadPicture(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	id, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := h.guard.Principal(r)
	user, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if user.ProfilePicture == nil {
		httpx.RespondError(w, shared.Fail(shared.ErrNotFound, "no profile picture set"))
		return
	}
	rc, err := h.blobs.Open(*user.ProfilePicture)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream profile picture", slog.Any("error", err))
	}
}
