package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roaa-mamdouh/mermaid-studio/internal/service"
)

type VersionHandler struct {
	versions *service.VersionService
	callers  CallerResolver
	logger   *slog.Logger
}

func NewVersionHandler(versions *service.VersionService, callers CallerResolver, logger *slog.Logger) *VersionHandler {
	return &VersionHandler{versions: versions, callers: callers, logger: logger}
}

// HTTP: GET /api/diagrams/{id}/versions
func (h *VersionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	versions, err := h.versions.List(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// HandleDiff returns a unified diff against ?compare=, or against the
// closest earlier version when compare is absent.
//
// HTTP: GET /api/versions/{id}/diff?compare=
func (h *VersionHandler) HandleDiff(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	diff, err := h.versions.Diff(r.Context(), caller, chi.URLParam(r, "id"), r.URL.Query().Get("compare"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"diff": diff})
}

// HTTP: POST /api/versions/{id}/restore
func (h *VersionHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	changed, err := h.versions.Restore(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := successResponse{Success: true}
	if !changed {
		resp.Message = "diagram already matches this version"
	}
	writeJSON(w, http.StatusOK, resp)
}
