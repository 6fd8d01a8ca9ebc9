package fields

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldgate/fieldgate/internal/platform/httpx"
	"github.com/fieldgate/fieldgate/internal/roles"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// Handler manages field definition endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     roles.GuardMiddleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard roles.GuardMiddleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers field definition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Get("/types", h.listFieldTypes)
		r.Get("/types/{fieldType}/validators", h.listValidators)
		r.Get("/roles/{roleID}", h.listForRole)
		r.Get("/{fieldID}", h.getField)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireElevated)
		r.Post("/", h.createField)
		r.Put("/{fieldID}", h.updateField)
		r.Post("/{fieldID}/activate", h.activateField)
		r.Post("/{fieldID}/deactivate", h.deactivateField)
		r.Delete("/{fieldID}", h.deleteField)
	})
}

type fieldRequest struct {
	RoleID           int64           `json:"role_id" validate:"required"`
	FieldName        string          `json:"field_name" validate:"required"`
	FieldType        FieldType       `json:"field_type" validate:"required"`
	IsRequired       bool            `json:"is_required"`
	FilledByRoleID   *int64          `json:"filled_by_role_id"`
	EditableByRoleID json.RawMessage `json:"editable_by_role_id"`
	Options          []Option        `json:"options"`
	Validation       json.RawMessage `json:"validation"`
	DisplayOrder     *int            `json:"display_order"`
}

type fieldResponse struct {
	ID               int64           `json:"id"`
	RoleID           int64           `json:"role_id"`
	FieldName        string          `json:"field_name"`
	FieldType        FieldType       `json:"field_type"`
	IsRequired       bool            `json:"is_required"`
	FilledByRoleID   int64           `json:"filled_by_role_id"`
	EditableByRoleID *int64          `json:"editable_by_role_id"`
	Options          []Option        `json:"options,omitempty"`
	Validation       json.RawMessage `json:"validation"`
	DisplayOrder     *int            `json:"display_order"`
	IsActive         bool            `json:"is_active"`
}

func toFieldResponse(field Field) fieldResponse {
	validation, err := EncodeConstraints(field.Validation)
	if err != nil {
		validation = json.RawMessage(`{}`)
	}
	return fieldResponse{
		ID:               field.ID,
		RoleID:           field.RoleID,
		FieldName:        field.FieldName,
		FieldType:        field.FieldType,
		IsRequired:       field.IsRequired,
		FilledByRoleID:   field.FilledByRoleID,
		EditableByRoleID: field.EditableByRoleID,
		Options:          field.Options,
		Validation:       validation,
		DisplayOrder:     field.DisplayOrder,
		IsActive:         field.IsActive,
	}
}

func toFieldResponses(fields []Field) []fieldResponse {
	out := make([]fieldResponse, len(fields))
	for i, field := range fields {
		out[i] = toFieldResponse(field)
	}
	return out
}

// parseEditableBy distinguishes an absent editable_by_role_id (defaulted by
// the service), an explicit null (nobody but Super Users) and a concrete id.
func parseEditableBy(raw json.RawMessage) (id *int64, nobody bool, err error) {
	if len(raw) == 0 {
		return nil, false, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, true, nil
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, shared.Fail(shared.ErrInvalidInput, "editable_by_role_id must be a role id or null")
	}
	return &v, false, nil
}

func (h *Handler) listFieldTypes(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string][]FieldType{"field_types": AllowedTypes()})
}

func (h *Handler) listValidators(w http.ResponseWriter, r *http.Request) {
	t := FieldType(chi.URLParam(r, "fieldType"))
	if !t.Valid() {
		httpx.RespondError(w, shared.Failf(shared.ErrNotFound, "unknown field type %q", t))
		return
	}
	httpx.JSON(w, http.StatusOK, ValidatorKeys(t))
}

func (h *Handler) createField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "role_id, field_name and field_type are required"))
		return
	}
	editableBy, nobody, err := parseEditableBy(req.EditableByRoleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	field, err := h.service.Create(r.Context(), CreateFieldInput{
		RoleID:           req.RoleID,
		FieldName:        req.FieldName,
		FieldType:        req.FieldType,
		IsRequired:       req.IsRequired,
		FilledByRoleID:   req.FilledByRoleID,
		EditableByRoleID: editableBy,
		EditableByNobody: nobody,
		Options:          req.Options,
		Validation:       req.Validation,
		DisplayOrder:     req.DisplayOrder,
	})
	if err != nil {
		h.logger.Warn("create field", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFieldResponse(field))
}

func (h *Handler) listForRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid role id"))
		return
	}
	activeOnly := r.URL.Query().Get("include_inactive") != "true"
	list, err := h.service.ListForRole(r.Context(), roleID, activeOnly)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFieldResponses(list))
}

func (h *Handler) getField(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "fieldID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid field id"))
		return
	}
	field, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFieldResponse(field))
}

func (h *Handler) updateField(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "fieldID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid field id"))
		return
	}
	var req struct {
		FieldName        *string         `json:"field_name"`
		FieldType        *FieldType      `json:"field_type"`
		IsRequired       *bool           `json:"is_required"`
		FilledByRoleID   *int64          `json:"filled_by_role_id"`
		EditableByRoleID json.RawMessage `json:"editable_by_role_id"`
		Options          *[]Option       `json:"options"`
		Validation       json.RawMessage `json:"validation"`
		DisplayOrder     *int            `json:"display_order"`
		IsActive         *bool           `json:"is_active"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "malformed request body"))
		return
	}
	editableBy, nobody, err := parseEditableBy(req.EditableByRoleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := UpdateFieldInput{
		FieldName:        req.FieldName,
		FieldType:        req.FieldType,
		IsRequired:       req.IsRequired,
		FilledByRoleID:   req.FilledByRoleID,
		EditableByRoleID: editableBy,
		EditableByNobody: nobody,
		Validation:       req.Validation,
		ValidationSet:    len(req.Validation) > 0,
		DisplayOrder:     req.DisplayOrder,
		IsActive:         req.IsActive,
	}
	if req.Options != nil {
		in.Options = *req.Options
		in.OptionsSet = true
	}
	field, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFieldResponse(field))
}

func (h *Handler) activateField(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) deactivateField(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "fieldID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid field id"))
		return
	}
	field, err := h.service.SetActive(r.Context(), id, active)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFieldResponse(field))
}

func (h *Handler) deleteField(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "fieldID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid field id"))
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
