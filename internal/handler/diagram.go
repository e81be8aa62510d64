package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roaa-mamdouh/mermaid-studio/internal/service"
)

// DiagramHandler serves diagram CRUD, preview and the tag report.
type DiagramHandler struct {
	diagrams *service.DiagramService
	collab   *service.CollabService
	callers  CallerResolver
	logger   *slog.Logger
}

func NewDiagramHandler(
	diagrams *service.DiagramService,
	collab *service.CollabService,
	callers CallerResolver,
	logger *slog.Logger,
) *DiagramHandler {
	return &DiagramHandler{
		diagrams: diagrams,
		collab:   collab,
		callers:  callers,
		logger:   logger,
	}
}

// HandleList lists the diagrams the caller can see.
//
// HTTP: GET /api/diagrams?folder=&is_template=&search_text=&limit=&start=&filters=
func (h *DiagramHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	query := service.ListQuery{
		FolderID:   q.Get("folder"),
		SearchText: q.Get("search_text"),
		Filters:    q.Get("filters"),
	}
	if query.IsTemplate, err = queryBool(r, "is_template"); err != nil {
		writeError(w, err)
		return
	}
	if query.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, err)
		return
	}
	if query.Offset, err = queryInt(r, "start"); err != nil {
		writeError(w, err)
		return
	}

	diagrams, err := h.diagrams.List(r.Context(), caller, query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diagrams)
}

// HandleCreate creates a diagram owned by the caller.
//
// HTTP: POST /api/diagrams
func (h *DiagramHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	var in service.DiagramInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	d, err := h.diagrams.Create(r.Context(), caller, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// HTTP: GET /api/diagrams/{id}
func (h *DiagramHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	d, err := h.diagrams.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleUpdate applies any subset of the mutable fields.
//
// HTTP: PATCH /api/diagrams/{id}
func (h *DiagramHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	var in service.DiagramInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	d, err := h.diagrams.Update(r.Context(), caller, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleDelete deletes a diagram and clears its collaboration state.
//
// HTTP: DELETE /api/diagrams/{id}
func (h *DiagramHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.diagrams.Delete(r.Context(), caller, id); err != nil {
		writeError(w, err)
		return
	}
	h.collab.Forget(r.Context(), id)

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// HTTP: POST /api/diagrams/{id}/preview
func (h *DiagramHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.diagrams.Preview(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HTTP: GET /api/tags/popular?limit=
func (h *DiagramHandler) HandlePopularTags(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	tags, err := h.diagrams.PopularTags(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}
