package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/render"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
	"github.com/roaa-mamdouh/mermaid-studio/internal/storage"
)

// MaxUploadSize caps uploaded and imported files.
const MaxUploadSize = 2 << 20

// RenderOptions sizes a server-side render. Zero values use the renderer's
// defaults.
type RenderOptions struct {
	Width  int
	Height int
	Scale  float64
}

// ExportResult is the response of an image export. When no renderer is
// configured Rendered is false and the client draws from Code itself.
type ExportResult struct {
	Format      render.Format     `json:"format"`
	Title       string            `json:"title"`
	Code        string            `json:"diagram_code"`
	Type        model.DiagramType `json:"diagram_type"`
	Rendered    bool              `json:"rendered"`
	ContentType string            `json:"content_type,omitempty"`
	// Data is SVG markup for svg and base64 for png and pdf.
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// MMDImport is the import_from_mmd request.
type MMDImport struct {
	FileURL  string `json:"file_url"`
	Title    string `json:"title"`
	FolderID string `json:"folder"`
	IsPublic bool   `json:"is_public"`
}

// exportDocument is the JSON export format, read back by ImportJSON.
type exportDocument struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Code        string            `json:"diagram_code"`
	Type        model.DiagramType `json:"diagram_type"`
	Version     int               `json:"version"`
	CreatedBy   string            `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
	Tags        []string          `json:"tags"`
}

// ExportService renders diagrams and moves them in and out of the file
// store. Every stored file gets an ownership record; reads go through Open,
// which only lets the owner and administrators back in.
type ExportService struct {
	diagrams *DiagramService
	records  repository.FileRepository
	files    storage.FileStore
	renderer render.Renderer // nil when server-side rendering is off
	logger   *slog.Logger
}

func NewExportService(
	diagrams *DiagramService,
	records repository.FileRepository,
	files storage.FileStore,
	renderer render.Renderer,
	logger *slog.Logger,
) *ExportService {
	return &ExportService{
		diagrams: diagrams,
		records:  records,
		files:    files,
		renderer: renderer,
		logger:   logger,
	}
}

// Render exports a readable diagram as svg, png or pdf.
func (s *ExportService) Render(ctx context.Context, caller model.Caller, diagramID string, format render.Format, opts RenderOptions) (*ExportResult, error) {
	if !format.Valid() {
		return nil, apperror.ValidationFailed("format", fmt.Sprintf("unsupported export format %q", format))
	}
	if opts.Width < 0 || opts.Height < 0 || opts.Scale < 0 {
		return nil, apperror.ValidationFailed("size", "width, height and scale must not be negative")
	}

	d, err := s.diagrams.Get(ctx, caller, diagramID)
	if err != nil {
		return nil, err
	}

	out := &ExportResult{
		Format: format,
		Title:  d.Title,
		Code:   d.Code,
		Type:   d.Type,
	}
	if s.renderer == nil {
		out.Message = strings.ToUpper(string(format)) + " export needs server-side rendering, which is not configured; render the diagram code on the client"
		return out, nil
	}

	res, err := s.renderer.Render(ctx, render.Request{
		Code:   d.Code,
		Format: format,
		Width:  opts.Width,
		Height: opts.Height,
		Scale:  opts.Scale,
	})
	if err != nil {
		if errors.Is(err, render.ErrRenderFailed) {
			return nil, apperror.ValidationFailed("diagram_code", err.Error())
		}
		s.logger.Error("render failed",
			slog.String("diagram", d.ID),
			slog.String("format", string(format)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("rendering %s as %s: %w", d.ID, format, err)
	}

	out.Rendered = true
	out.ContentType = format.ContentType()
	if format == render.FormatSVG {
		out.Data = string(res.Data)
	} else {
		out.Data = base64.StdEncoding.EncodeToString(res.Data)
	}

	s.logger.Info("diagram exported",
		slog.String("diagram", d.ID),
		slog.String("format", string(format)),
		slog.Duration("renderTime", res.Duration),
	)
	return out, nil
}

// ExportMMD stores the raw diagram code as <Title>.mmd.
func (s *ExportService) ExportMMD(ctx context.Context, caller model.Caller, diagramID string) (*storage.File, error) {
	d, err := s.diagrams.Get(ctx, caller, diagramID)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, caller, d.ID, exportName(d.Title, ".mmd"), []byte(d.Code), "text/plain; charset=utf-8")
}

// ExportJSON stores the diagram's portable fields as indented JSON.
func (s *ExportService) ExportJSON(ctx context.Context, caller model.Caller, diagramID string) (*storage.File, error) {
	d, err := s.diagrams.Get(ctx, caller, diagramID)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(exportDocument{
		Title:       d.Title,
		Description: d.Description,
		Code:        d.Code,
		Type:        d.Type,
		Version:     d.Version,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
		Tags:        d.Tags,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export of %s: %w", d.ID, err)
	}
	return s.store(ctx, caller, d.ID, exportName(d.Title, ".json"), data, "application/json")
}

// Upload stores a user-supplied file for a later import.
func (s *ExportService) Upload(ctx context.Context, caller model.Caller, name string, r io.Reader, size int64, contentType string) (*storage.File, error) {
	if caller.IsGuest() {
		return nil, apperror.Unauthorized()
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperror.ValidationFailed("file", "file name is required")
	}
	if size > MaxUploadSize {
		return nil, apperror.ValidationFailed("file", fmt.Sprintf("file must be %d bytes or less", MaxUploadSize))
	}

	f, err := s.files.Save(ctx, name, io.LimitReader(r, MaxUploadSize), size, contentType)
	if err != nil {
		s.logger.Error("failed to store upload", slog.String("name", name), slog.String("error", err.Error()))
		return nil, fmt.Errorf("storing upload %q: %w", name, err)
	}
	if err := s.record(ctx, caller, "", f); err != nil {
		return nil, err
	}
	s.logger.Info("file uploaded", slog.String("url", f.URL), slog.Int64("size", f.Size))
	return f, nil
}

// ImportMMD creates a diagram owned by the caller from a stored .mmd file.
// Without a title the file name is used, "_" read as spaces.
func (s *ExportService) ImportMMD(ctx context.Context, caller model.Caller, in MMDImport) (*model.Diagram, error) {
	if caller.IsGuest() {
		return nil, apperror.Unauthorized()
	}
	data, err := s.read(ctx, caller, in.FileURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		base := storage.BaseName(in.FileURL)
		base, _, _ = strings.Cut(base, ".")
		title = strings.ReplaceAll(base, "_", " ")
	}

	code := string(data)
	input := DiagramInput{
		Title:    &title,
		Code:     &code,
		IsPublic: &in.IsPublic,
	}
	if folder := strings.TrimSpace(in.FolderID); folder != "" {
		input.FolderID = &folder
	}
	return s.diagrams.Create(ctx, caller, input)
}

// ImportJSON creates a diagram owned by the caller from a stored JSON export.
func (s *ExportService) ImportJSON(ctx context.Context, caller model.Caller, fileURL string) (*model.Diagram, error) {
	if caller.IsGuest() {
		return nil, apperror.Unauthorized()
	}
	data, err := s.read(ctx, caller, fileURL)
	if err != nil {
		return nil, err
	}

	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, s.importError(fileURL, err)
	}

	input := DiagramInput{
		Title:       &doc.Title,
		Description: &doc.Description,
		Code:        &doc.Code,
		Tags:        &doc.Tags,
	}
	if doc.Type != "" {
		input.Type = &doc.Type
	}
	return s.diagrams.Create(ctx, caller, input)
}

// Open returns a stored file the caller owns, together with its record.
// Guests get ErrUnauthorized and other users ErrForbidden.
func (s *ExportService) Open(ctx context.Context, caller model.Caller, fileURL string) (io.ReadCloser, *model.StoredFile, error) {
	if caller.IsGuest() {
		return nil, nil, apperror.Unauthorized()
	}
	url, err := storage.CanonicalURL(fileURL)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.records.GetFile(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	if !rec.CanRead(caller) {
		s.logger.Warn("file access denied",
			slog.String("url", url),
			slog.String("user", caller.UserID),
		)
		return nil, nil, apperror.Forbidden("you do not have access to this file")
	}

	rc, err := s.files.Open(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return rc, rec, nil
}

// read loads an import file, refusing anything larger than a diagram can be.
func (s *ExportService) read(ctx context.Context, caller model.Caller, fileURL string) ([]byte, error) {
	if strings.TrimSpace(fileURL) == "" {
		return nil, apperror.ValidationFailed("file_url", "file_url is required")
	}
	rc, _, err := s.Open(ctx, caller, fileURL)
	if err != nil {
		if errors.Is(err, apperror.ErrForbidden) {
			return nil, err
		}
		return nil, s.importError(fileURL, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxUploadSize+1))
	if err != nil {
		return nil, s.importError(fileURL, err)
	}
	if len(data) > MaxUploadSize {
		return nil, s.importError(fileURL, errors.New("file too large"))
	}
	return data, nil
}

func (s *ExportService) importError(fileURL string, err error) error {
	s.logger.Error("error importing diagram file",
		slog.String("fileURL", fileURL),
		slog.String("error", err.Error()),
	)
	return apperror.ValidationFailed("file_url", "error importing diagram file")
}

// store saves an export owned by caller. Guests may read public diagrams,
// but a file without an owner could never be downloaded, so they can't export
// to the file store.
func (s *ExportService) store(ctx context.Context, caller model.Caller, diagramID, name string, data []byte, contentType string) (*storage.File, error) {
	if caller.IsGuest() {
		return nil, apperror.Unauthorized()
	}
	f, err := s.files.Save(ctx, name, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		s.logger.Error("failed to store export", slog.String("name", name), slog.String("error", err.Error()))
		return nil, fmt.Errorf("storing %s: %w", name, err)
	}
	if err := s.record(ctx, caller, diagramID, f); err != nil {
		return nil, err
	}
	s.logger.Info("diagram file exported", slog.String("url", f.URL))
	return f, nil
}

// record makes caller the owner of a freshly stored file.
func (s *ExportService) record(ctx context.Context, caller model.Caller, diagramID string, f *storage.File) error {
	rec := &model.StoredFile{
		URL:         f.URL,
		Name:        f.Name,
		Owner:       caller.UserID,
		ContentType: f.ContentType,
		Size:        f.Size,
	}
	if diagramID != "" {
		rec.DiagramID = &diagramID
	}
	if err := s.records.CreateFile(ctx, rec); err != nil {
		return fmt.Errorf("recording file %s: %w", f.URL, err)
	}
	return nil
}

// exportName turns a title into a file name: spaces become underscores.
func exportName(title, ext string) string {
	return strings.ReplaceAll(strings.TrimSpace(title), " ", "_") + ext
}
