package values

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fieldgate/fieldgate/internal/fields"
	"github.com/fieldgate/fieldgate/internal/platform/httpx"
	"github.com/fieldgate/fieldgate/internal/roles"
	"github.com/fieldgate/fieldgate/internal/shared"
)

const maxUploadBytes = 64 << 20

// BlobStore stores and serves uploaded document blobs. Satisfied by the
// media store.
type BlobStore interface {
	Save(filename string, r io.Reader) (key string, sizeMB float64, err error)
	Open(key string) (io.ReadCloser, error)
	Remove(key string) error
}

// Handler manages per-user field value endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   roles.GuardMiddleware
	blobs   BlobStore
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard roles.GuardMiddleware, blobs BlobStore) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, blobs: blobs}
}

// MountRoutes registers field value routes under a user scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Get("/{userID}/fields", h.listForUser)
		r.Get("/{userID}/fields/{fieldID}", h.getValue)
		r.Put("/{userID}/fields/{fieldID}", h.setValue)
		r.Delete("/{userID}/fields/{fieldID}", h.deleteValue)
		r.Post("/{userID}/fields/{fieldID}/document", h.uploadDocument)
		r.Get("/{userID}/fields/{fieldID}/document", h.downloadDocument)
	})
}

type valueResponse struct {
	UserID          uuid.UUID `json:"user_id"`
	RequiredFieldID int64     `json:"required_field_id"`
	Value           any       `json:"value"`
}

type fieldStateResponse struct {
	FieldID    int64            `json:"field_id"`
	FieldName  string           `json:"field_name"`
	FieldType  fields.FieldType `json:"field_type"`
	IsRequired bool             `json:"is_required"`
	Filled     bool             `json:"filled"`
	Value      any              `json:"value,omitempty"`
}

func toValueResponse(value Value) valueResponse {
	return valueResponse{
		UserID:          value.UserID,
		RequiredFieldID: value.RequiredFieldID,
		Value:           value.Data,
	}
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (roles.Actor, bool) {
	actor, ok := h.guard.Principal(r)
	if !ok {
		httpx.RespondError(w, shared.Fail(shared.ErrForbidden, "not authenticated"))
	}
	return actor, ok
}

func pathIDs(r *http.Request) (uuid.UUID, int64, error) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		return uuid.Nil, 0, shared.Fail(shared.ErrInvalidInput, "invalid user id")
	}
	fieldID, err := strconv.ParseInt(chi.URLParam(r, "fieldID"), 10, 64)
	if err != nil {
		return uuid.Nil, 0, shared.Fail(shared.ErrInvalidInput, "invalid field id")
	}
	return userID, fieldID, nil
}

func (h *Handler) setValue(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	userID, fieldID, err := pathIDs(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req struct {
		Value json.RawMessage `json:"value"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil || len(req.Value) == 0 {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "request body must carry a value"))
		return
	}
	var raw any
	if err := json.Unmarshal(req.Value, &raw); err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "value is not valid JSON"))
		return
	}
	value, err := h.service.SetValue(r.Context(), actor, userID, fieldID, raw)
	if err != nil {
		h.logger.Warn("set field value",
			slog.String("user_id", userID.String()),
			slog.Int64("field_id", fieldID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toValueResponse(value))
}

func (h *Handler) getValue(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	userID, fieldID, err := pathIDs(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	value, err := h.service.GetValue(r.Context(), actor, userID, fieldID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toValueResponse(value))
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "invalid user id"))
		return
	}
	states, err := h.service.ListForUser(r.Context(), actor, userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]fieldStateResponse, len(states))
	for i, state := range states {
		resp := fieldStateResponse{
			FieldID:    state.Field.ID,
			FieldName:  state.Field.FieldName,
			FieldType:  state.Field.FieldType,
			IsRequired: state.Field.IsRequired,
			Filled:     state.Filled,
		}
		if state.Value != nil {
			resp.Value = state.Value.Data
		}
		out[i] = resp
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) deleteValue(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	userID, fieldID, err := pathIDs(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	removed, err := h.service.Delete(r.Context(), actor, userID, fieldID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if doc, derr := fields.DocumentFromValue(removed.Data); derr == nil && doc.Key != "" {
		if rerr := h.blobs.Remove(doc.Key); rerr != nil {
			h.logger.Warn("remove stored file", slog.String("key", doc.Key), slog.Any("error", rerr))
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	userID, fieldID, err := pathIDs(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, shared.Fail(shared.ErrInvalidInput, "multipart field 'file' is required"))
		return
	}
	defer file.Close()

	key, sizeMB, err := h.blobs.Save(header.Filename, file)
	if err != nil {
		h.logger.Error("store uploaded file", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	doc := fields.DocumentValue{Name: header.Filename, SizeMB: sizeMB, Key: key}
	value, oldDoc, err := h.service.SetDocument(r.Context(), actor, userID, fieldID, doc)
	if err != nil {
		// The write was rejected, so the fresh blob is orphaned.
		if rerr := h.blobs.Remove(key); rerr != nil {
			h.logger.Warn("remove rejected upload", slog.String("key", key), slog.Any("error", rerr))
		}
		httpx.RespondError(w, err)
		return
	}
	if oldDoc != nil {
		if rerr := h.blobs.Remove(oldDoc.Key); rerr != nil {
			h.logger.Warn("remove replaced file", slog.String("key", oldDoc.Key), slog.Any("error", rerr))
		}
	}
	httpx.JSON(w, http.StatusOK, toValueResponse(value))
}

func (h *Handler) downloadDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	userID, fieldID, err := pathIDs(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.DocumentForDownload(r.Context(), actor, userID, fieldID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rc, err := h.blobs.Open(doc.Key)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream stored file", slog.Any("error", err))
	}
}
