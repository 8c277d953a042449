package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pocketbase/pocketbase/core"

	"github.com/damione1/collab-notes/internal/config"
	"github.com/damione1/collab-notes/internal/models"
	"github.com/damione1/collab-notes/internal/security"
	"github.com/damione1/collab-notes/internal/services"
	"github.com/damione1/collab-notes/internal/store"
)

type createNoteRequest struct {
	RoomID  string `json:"roomId" validate:"required"`
	Content string `json:"content"`
}

type updateNoteRequest struct {
	Content *string `json:"content" validate:"required"`
}

type latestNoteResponse struct {
	*models.Document
	State models.RoomState `json:"state"`
}

// NotesHandlers serves the HTTP fallback for reading and writing room
// documents when the live channel is not connected.
type NotesHandlers struct {
	reconciler *services.Reconciler
	validate   *validator.Validate
	log        *slog.Logger
}

func NewNotesHandlers(reconciler *services.Reconciler, log *slog.Logger) *NotesHandlers {
	if log == nil {
		log = slog.Default()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &NotesHandlers{
		reconciler: reconciler,
		validate:   validate,
		log:        log,
	}
}

// ListByRoom handles GET /api/notes/{roomId}
func (h *NotesHandlers) ListByRoom(re *core.RequestEvent) error {
	docs, err := h.reconciler.List(re.Request.Context(), re.Request.PathValue("roomId"))
	if err != nil {
		return h.fail(re, err)
	}
	return re.JSON(http.StatusOK, docs)
}

// Latest handles GET /api/notes/{roomId}/latest
func (h *NotesHandlers) Latest(re *core.RequestEvent) error {
	doc, err := h.reconciler.ReadLatest(re.Request.Context(), re.Request.PathValue("roomId"))
	if err != nil {
		return h.fail(re, err)
	}
	return re.JSON(http.StatusOK, latestNoteResponse{Document: doc, State: models.DocumentState(doc)})
}

// Create handles POST /api/notes
func (h *NotesHandlers) Create(re *core.RequestEvent) error {
	var req createNoteRequest
	if err := h.bind(re, &req); err != nil {
		return badRequest(re, err)
	}

	doc, err := h.reconciler.Create(re.Request.Context(), req.RoomID, req.Content)
	if err != nil {
		return h.fail(re, err)
	}
	return re.JSON(http.StatusCreated, doc)
}

// UpdateByRoom handles PUT /api/notes/room/{roomId}
func (h *NotesHandlers) UpdateByRoom(re *core.RequestEvent) error {
	var req updateNoteRequest
	if err := h.bind(re, &req); err != nil {
		return badRequest(re, err)
	}

	doc, err := h.reconciler.Write(re.Request.Context(), re.Request.PathValue("roomId"), *req.Content)
	if err != nil {
		return h.fail(re, err)
	}
	return re.JSON(http.StatusOK, doc)
}

// UpdateByID handles PUT /api/notes/id/{noteId}
func (h *NotesHandlers) UpdateByID(re *core.RequestEvent) error {
	var req updateNoteRequest
	if err := h.bind(re, &req); err != nil {
		return badRequest(re, err)
	}

	doc, err := h.reconciler.UpdateByID(re.Request.Context(), re.Request.PathValue("noteId"), *req.Content)
	if err != nil {
		return h.fail(re, err)
	}
	return re.JSON(http.StatusOK, doc)
}

func (h *NotesHandlers) bind(re *core.RequestEvent, dst any) error {
	re.Request.Body = http.MaxBytesReader(re.Response, re.Request.Body, config.MaxMessageSize)
	if err := re.BindBody(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New(verrs[0].Field() + " is required")
		}
		return err
	}
	return nil
}

func (h *NotesHandlers) fail(re *core.RequestEvent, err error) error {
	switch {
	case errors.Is(err, security.ErrInvalidRoomID), errors.Is(err, security.ErrContentTooLarge):
		return badRequest(re, err)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, security.ErrInvalidDocumentID):
		return re.JSON(http.StatusNotFound, map[string]string{
			"error": "Note not found",
		})
	}

	h.log.Error("note request failed", "method", re.Request.Method, "path", re.Request.URL.Path, "err", err)
	return re.JSON(http.StatusInternalServerError, map[string]string{
		"error": security.SanitizeErrorMessage(err),
	})
}

func badRequest(re *core.RequestEvent, err error) error {
	return re.JSON(http.StatusBadRequest, map[string]string{
		"error": err.Error(),
	})
}
