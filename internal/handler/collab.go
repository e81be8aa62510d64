package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roaa-mamdouh/mermaid-studio/internal/collab"
	"github.com/roaa-mamdouh/mermaid-studio/internal/service"
)

// CollabHandler serves presence, cursors and the editing soft lock.
type CollabHandler struct {
	collab  *service.CollabService
	callers CallerResolver
	logger  *slog.Logger
}

func NewCollabHandler(collab *service.CollabService, callers CallerResolver, logger *slog.Logger) *CollabHandler {
	return &CollabHandler{collab: collab, callers: callers, logger: logger}
}

type cursorRequest struct {
	Position json.RawMessage `json:"position"`
}

// HTTP: POST /api/diagrams/{id}/active-users
func (h *CollabHandler) HandleActiveUsers(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.collab.ActiveUsers(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HTTP: PUT /api/diagrams/{id}/cursors
func (h *CollabHandler) HandleUpdateCursor(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	var req cursorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	cursors, err := h.collab.UpdateCursor(r.Context(), caller, chi.URLParam(r, "id"), req.Position)
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cursors)
}

// HTTP: GET /api/diagrams/{id}/cursors
func (h *CollabHandler) HandleCursors(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	cursors, err := h.collab.Cursors(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cursors)
}

// HandleStartEditing claims the editor. A refusal is still a 200 with
// success=false.
//
// HTTP: POST /api/diagrams/{id}/editing-session
func (h *CollabHandler) HandleStartEditing(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.collab.StartEditing(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HTTP: DELETE /api/diagrams/{id}/editing-session
func (h *CollabHandler) HandleEndEditing(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.collab.EndEditing(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeCollabError reports an unreachable store as 503 so clients can retry
// instead of treating it as a server bug.
func writeCollabError(w http.ResponseWriter, err error) {
	if errors.Is(err, collab.ErrUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "collaboration state is temporarily unavailable",
		})
		return
	}
	writeError(w, err)
}
