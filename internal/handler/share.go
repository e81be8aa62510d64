package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roaa-mamdouh/mermaid-studio/internal/service"
)

// ShareHandler serves per-user shares and the public token lookup.
type ShareHandler struct {
	shares  *service.ShareService
	callers CallerResolver
	logger  *slog.Logger
}

func NewShareHandler(shares *service.ShareService, callers CallerResolver, logger *slog.Logger) *ShareHandler {
	return &ShareHandler{shares: shares, callers: callers, logger: logger}
}

type shareResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"share_token"`
}

// HTTP: POST /api/diagrams/{id}/shares
func (h *ShareHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	var in service.ShareInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	share, err := h.shares.Share(r.Context(), caller, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shareResponse{Success: true, Token: share.Token})
}

// HTTP: GET /api/diagrams/{id}/shares
func (h *ShareHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	shares, err := h.shares.List(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

// HTTP: DELETE /api/shares/{id}
func (h *ShareHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.shares.Revoke(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// HandlePublic opens a diagram by share token. No login is needed.
//
// HTTP: GET /api/public/{token}
func (h *ShareHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	d, err := h.shares.GetPublic(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
