package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roaa-mamdouh/mermaid-studio/internal/service"
)

type CommentHandler struct {
	comments *service.CommentService
	callers  CallerResolver
	logger   *slog.Logger
}

func NewCommentHandler(comments *service.CommentService, callers CallerResolver, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, callers: callers, logger: logger}
}

type commentRequest struct {
	Text     string          `json:"comment_text"`
	Position json.RawMessage `json:"position"`
}

// HTTP: GET /api/diagrams/{id}/comments
func (h *CommentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	comments, err := h.comments.List(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// HTTP: POST /api/diagrams/{id}/comments
func (h *CommentHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.comments.Add(r.Context(), caller, chi.URLParam(r, "id"), req.Text, req.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HTTP: DELETE /api/comments/{id}
func (h *CommentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.comments.Delete(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
