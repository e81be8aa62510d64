package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roaa-mamdouh/mermaid-studio/internal/service"
)

type FolderHandler struct {
	folders *service.FolderService
	callers CallerResolver
	logger  *slog.Logger
}

func NewFolderHandler(folders *service.FolderService, callers CallerResolver, logger *slog.Logger) *FolderHandler {
	return &FolderHandler{folders: folders, callers: callers, logger: logger}
}

// HandleList lists the caller's folders under ?parent=, or the top level.
//
// HTTP: GET /api/folders?parent=
func (h *FolderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	folders, err := h.folders.List(r.Context(), caller, r.URL.Query().Get("parent"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

// HTTP: POST /api/folders
func (h *FolderHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	var in service.FolderInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	f, err := h.folders.Create(r.Context(), caller, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// HTTP: GET /api/folders/{id}
func (h *FolderHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	f, err := h.folders.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HTTP: PATCH /api/folders/{id}
func (h *FolderHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	var in service.FolderInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	f, err := h.folders.Update(r.Context(), caller, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HandleDelete removes a folder. Its diagrams and subfolders move to the top
// level.
//
// HTTP: DELETE /api/folders/{id}
func (h *FolderHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.folders.Delete(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// HTTP: GET /api/folders/{id}/subfolders
func (h *FolderHandler) HandleSubfolders(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	folders, err := h.folders.Subfolders(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

// HTTP: GET /api/folders/{id}/diagrams?limit=&start=
func (h *FolderHandler) HandleDiagrams(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "start")
	if err != nil {
		writeError(w, err)
		return
	}

	diagrams, err := h.folders.Diagrams(r.Context(), caller, chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diagrams)
}

type moveRequest struct {
	TargetFolder string `json:"target_folder"`
}

type moveResponse struct {
	Success bool  `json:"success"`
	Moved   int64 `json:"moved"`
}

// HandleMove moves every diagram in the folder to target_folder. An empty
// target moves them to the top level.
//
// HTTP: POST /api/folders/{id}/move
func (h *FolderHandler) HandleMove(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	moved, err := h.folders.MoveDiagrams(r.Context(), caller, chi.URLParam(r, "id"), req.TargetFolder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moveResponse{Success: true, Moved: moved})
}
