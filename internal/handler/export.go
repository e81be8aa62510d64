package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/render"
	"github.com/roaa-mamdouh/mermaid-studio/internal/service"
	"github.com/roaa-mamdouh/mermaid-studio/internal/storage"
)

// multipartOverhead is headroom for multipart boundaries and headers on top
// of the upload itself.
const multipartOverhead = 64 << 10

// ExportHandler serves exports, imports and the file store.
type ExportHandler struct {
	exports *service.ExportService
	callers CallerResolver
	logger  *slog.Logger
}

func NewExportHandler(exports *service.ExportService, callers CallerResolver, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, callers: callers, logger: logger}
}

type renderRequest struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

// HandleExport exports a diagram. svg, png and pdf are rendered inline;
// mmd and json are written to the file store and returned as a file URL.
//
// HTTP: POST /api/diagrams/{id}/export/{format}
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	switch format := chi.URLParam(r, "format"); format {
	case "mmd", "json":
		var f *storage.File
		if format == "mmd" {
			f, err = h.exports.ExportMMD(r.Context(), caller, id)
		} else {
			f, err = h.exports.ExportJSON(r.Context(), caller, id)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)

	default:
		var req renderRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		res, err := h.exports.Render(r.Context(), caller, id, render.Format(format), service.RenderOptions{
			Width:  req.Width,
			Height: req.Height,
			Scale:  req.Scale,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleImport creates a diagram from a previously uploaded file.
//
// HTTP: POST /api/import/{format}
func (h *ExportHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	var in service.MMDImport
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	format := chi.URLParam(r, "format")
	switch format {
	case "mmd":
		d, err := h.exports.ImportMMD(r.Context(), caller, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	case "json":
		d, err := h.exports.ImportJSON(r.Context(), caller, in.FileURL)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	default:
		writeError(w, apperror.ValidationFailed("format", "unsupported import format "+format))
	}
}

// HandleUpload stores the multipart field "file".
//
// HTTP: POST /api/files
func (h *ExportHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}
	if caller.IsGuest() {
		writeError(w, apperror.Unauthorized())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, service.MaxUploadSize+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, apperror.ValidationFailed("file", "file is too large"))
			return
		}
		writeError(w, apperror.ValidationFailed("file", "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	f, err := h.exports.Upload(r.Context(), caller, header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// HandleDownload streams a stored file back to its owner.
//
// HTTP: GET /files/*
func (h *ExportHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r, h.callers)
	if err != nil {
		writeError(w, err)
		return
	}

	rc, rec, err := h.exports.Open(r.Context(), caller, r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(rec.URL))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": storage.BaseName(rec.URL),
	}))

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("file download interrupted",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
