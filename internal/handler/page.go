package handler

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/service"
)

// PageHandler serves the read-only share page. Templates are parsed once at
// startup; base.html wraps the "content" block defined by share.html.
type PageHandler struct {
	shares    *service.ShareService
	templates *template.Template
	logger    *slog.Logger
}

func NewPageHandler(shares *service.ShareService, templateDir string, logger *slog.Logger) (*PageHandler, error) {
	tmpl, err := template.ParseFiles(
		filepath.Join(templateDir, "base.html"),
		filepath.Join(templateDir, "share.html"),
	)
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		shares:    shares,
		templates: tmpl,
		logger:    logger,
	}, nil
}

type sharePage struct {
	Title   string
	Diagram *model.SharedDiagram
	Error   string
}

// HandleShare renders a shared diagram. The page draws it in the browser
// with Mermaid, so nothing is rendered server-side.
//
// HTTP: GET /s/{token}
func (h *PageHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	page := sharePage{Title: "Mermaid Studio"}

	d, err := h.shares.GetPublic(r.Context(), chi.URLParam(r, "token"))
	switch {
	case err == nil:
		page.Title = d.Title + " · Mermaid Studio"
		page.Diagram = d
	case errors.Is(err, apperror.ErrExpired):
		status = http.StatusGone
		page.Error = "This share link has expired."
	case apperror.IsKind(err):
		status = http.StatusNotFound
		page.Error = "This share link is not valid."
	default:
		h.logger.Error("failed to load shared diagram", slog.String("error", err.Error()))
		status = http.StatusInternalServerError
		page.Error = "Something went wrong loading this diagram."
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, "base", page); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
	}
}
