package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/filter"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
)

// DiagramInput carries the fields a caller may set on create or update.
// A nil field means "leave unchanged" (or "use the default" on create).
type DiagramInput struct {
	Title          *string              `json:"title"`
	Description    *string              `json:"description"`
	Code           *string              `json:"diagram_code"`
	Type           *model.DiagramType   `json:"diagram_type"`
	Status         *model.DiagramStatus `json:"status"`
	IsPublic       *bool                `json:"is_public"`
	IsTemplate     *bool                `json:"is_template"`
	FolderID       *string              `json:"folder"` // "" moves the diagram out of its folder
	Tags           *[]string            `json:"tags"`
	Thumbnail      *string              `json:"thumbnail"`
	RenderSettings json.RawMessage      `json:"render_settings"`
	// ChangeNotes is stored on the version snapshot if this save changes the code.
	ChangeNotes string `json:"change_notes"`
}

// ListQuery holds the get_diagrams parameters.
type ListQuery struct {
	FolderID   string
	IsTemplate *bool
	SearchText string
	Filters    string // raw JSON, see filter.Normalize
	Limit      int
	Offset     int
}

// PreviewResult is returned by Preview.
type PreviewResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Code    string            `json:"diagram_code"`
	Type    model.DiagramType `json:"diagram_type"`
}

// DiagramService owns the diagram lifecycle: validation before every save
// and version snapshots after any save that changes the code.
type DiagramService struct {
	diagrams repository.DiagramRepository
	folders  repository.FolderRepository
	versions repository.VersionRepository
	authz    *Authorizer
	logger   *slog.Logger
	now      clock
}

func NewDiagramService(
	diagrams repository.DiagramRepository,
	folders repository.FolderRepository,
	versions repository.VersionRepository,
	authz *Authorizer,
	logger *slog.Logger,
) *DiagramService {
	return &DiagramService{
		diagrams: diagrams,
		folders:  folders,
		versions: versions,
		authz:    authz,
		logger:   logger,
		now:      systemClock,
	}
}

// Create validates and stores a new diagram owned by the caller. New
// diagrams start at version 0 with no history.
func (s *DiagramService) Create(ctx context.Context, caller model.Caller, in DiagramInput) (*model.Diagram, error) {
	if caller.IsGuest() {
		return nil, apperror.Unauthorized()
	}

	d := &model.Diagram{
		Owner:     caller.UserID,
		CreatedBy: caller.UserID,
	}
	apply(d, in)

	if err := s.validate(ctx, d); err != nil {
		return nil, err
	}
	if err := s.checkFolder(ctx, caller, d.FolderID); err != nil {
		return nil, err
	}

	if err := s.diagrams.Create(ctx, d); err != nil {
		s.logger.Error("failed to create diagram",
			slog.String("title", d.Title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating diagram: %w", err)
	}

	s.logger.Info("diagram created",
		slog.String("id", d.ID),
		slog.String("title", d.Title),
		slog.String("type", string(d.Type)),
		slog.String("owner", d.Owner),
	)
	return d, nil
}

// Get returns a diagram the caller can read.
func (s *DiagramService) Get(ctx context.Context, caller model.Caller, id string) (*model.Diagram, error) {
	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Require(ctx, caller, d, model.PermissionRead); err != nil {
		return nil, err
	}
	return d, nil
}

// List returns the diagrams visible to the caller, newest change first.
//
// Administrators see everything. Signed-in users see their own diagrams,
// public ones and those shared with their e-mail. Guests see public ones.
func (s *DiagramService) List(ctx context.Context, caller model.Caller, q ListQuery) ([]model.DiagramSummary, error) {
	conditions, err := filter.Normalize(q.Filters)
	if err != nil {
		return nil, err
	}

	f := repository.DiagramFilter{
		FolderID:   strings.TrimSpace(q.FolderID),
		IsTemplate: q.IsTemplate,
		SearchText: strings.TrimSpace(q.SearchText),
		Conditions: conditions,
		ListOptions: repository.ListOptions{
			Limit:  clampLimit(q.Limit),
			Offset: max(q.Offset, 0),
		},
	}
	switch {
	case caller.Admin:
	case caller.IsGuest():
		f.IncludePublic = true
	default:
		f.Owner = caller.UserID
		f.SharedWith = caller.Email
		f.IncludePublic = true
	}

	diagrams, err := s.diagrams.List(ctx, f)
	if err != nil {
		if apperror.IsKind(err) {
			return nil, err
		}
		s.logger.Error("failed to list diagrams", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing diagrams: %w", err)
	}

	out := make([]model.DiagramSummary, len(diagrams))
	for i := range diagrams {
		out[i] = diagrams[i].Summary()
	}
	return out, nil
}

// Update applies in to a diagram the caller can write. If the code changes
// the version counter moves forward and a snapshot is appended.
func (s *DiagramService) Update(ctx context.Context, caller model.Caller, id string, in DiagramInput) (*model.Diagram, error) {
	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Require(ctx, caller, d, model.PermissionWrite); err != nil {
		return nil, err
	}

	prevCode, prevFolder := d.Code, d.FolderID
	apply(d, in)
	if !sameFolder(prevFolder, d.FolderID) {
		if err := s.checkFolder(ctx, caller, d.FolderID); err != nil {
			return nil, err
		}
	}
	if err := s.save(ctx, caller, d, prevCode, in.ChangeNotes); err != nil {
		return nil, err
	}
	return d, nil
}

// Delete removes a diagram. Only the owner or an administrator may do this.
func (s *DiagramService) Delete(ctx context.Context, caller model.Caller, id string) error {
	d, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.RequireOwner(caller, d); err != nil {
		return err
	}

	if err := s.diagrams.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("diagram deleted",
		slog.String("id", id),
		slog.String("by", caller.UserID),
	)
	return nil
}

// Preview stamps the render time and returns what the client needs to draw
// the diagram.
func (s *DiagramService) Preview(ctx context.Context, caller model.Caller, id string) (*PreviewResult, error) {
	d, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d.LastRendered = &now
	if err := s.diagrams.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("stamping preview of %s: %w", id, err)
	}

	return &PreviewResult{
		Success: true,
		Message: "Preview generated successfully",
		Code:    d.Code,
		Type:    d.Type,
	}, nil
}

// PopularTags lists the most used tags across all diagrams.
func (s *DiagramService) PopularTags(ctx context.Context, limit int) ([]model.TagCount, error) {
	tags, err := s.diagrams.PopularTags(ctx, clampLimit(limit))
	if err != nil {
		s.logger.Error("failed to list popular tags", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing popular tags: %w", err)
	}
	return tags, nil
}

// save is the update path shared by Update and version restore: validate,
// persist, then record history.
func (s *DiagramService) save(ctx context.Context, caller model.Caller, d *model.Diagram, prevCode, notes string) error {
	if err := s.validate(ctx, d); err != nil {
		return err
	}

	changed := d.Code != prevCode
	if changed {
		d.Version++
	}

	if err := s.diagrams.Update(ctx, d); err != nil {
		if apperror.IsKind(err) {
			return err
		}
		s.logger.Error("failed to update diagram",
			slog.String("id", d.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("updating diagram %s: %w", d.ID, err)
	}

	if changed {
		if err := s.onUpdate(ctx, caller, d, prevCode, notes); err != nil {
			return err
		}
	}

	s.logger.Info("diagram updated",
		slog.String("id", d.ID),
		slog.Int("version", d.Version),
		slog.Bool("codeChanged", changed),
	)
	return nil
}

// onUpdate appends the snapshot for a code change. The snapshot number is
// the diagram's new version; its code is the text the change replaced.
func (s *DiagramService) onUpdate(ctx context.Context, caller model.Caller, d *model.Diagram, prevCode, notes string) error {
	v := &model.Version{
		DiagramID:     d.ID,
		VersionNumber: d.Version,
		Code:          prevCode,
		CreatedBy:     caller.UserID,
		CreatedAt:     s.now(),
		ChangeNotes:   strings.TrimSpace(notes),
	}
	if err := s.versions.CreateVersion(ctx, v); err != nil {
		s.logger.Error("failed to record diagram version",
			slog.String("diagram", d.ID),
			slog.Int("version", d.Version),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("recording version %d of %s: %w", d.Version, d.ID, err)
	}
	return nil
}

// validate normalizes d in place and rejects values that can't be stored.
func (s *DiagramService) validate(ctx context.Context, d *model.Diagram) error {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(d.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if len(d.Code) > MaxCodeLength {
		return apperror.ValidationFailed("diagram_code",
			fmt.Sprintf("diagram code must be %d characters or less", MaxCodeLength))
	}
	d.Description = strings.TrimSpace(d.Description)

	if d.Status == "" {
		d.Status = model.StatusDraft
	}
	if !d.Status.Valid() {
		return apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", d.Status))
	}

	if d.Type == "" {
		d.Type = model.DetectDiagramType(d.Code)
	}
	if !d.Type.Valid() {
		return apperror.ValidationFailed("diagram_type", fmt.Sprintf("unknown diagram type %q", d.Type))
	}

	if d.RenderSettings != "" && !json.Valid([]byte(d.RenderSettings)) {
		return apperror.ValidationFailed("render_settings", "render settings must be valid JSON")
	}

	d.Tags = model.NormalizeTags(d.Tags)

	if d.FolderID != nil {
		if _, err := s.folders.GetFolder(ctx, *d.FolderID); err != nil {
			return err
		}
	}

	now := s.now()
	d.LastRendered = &now
	return nil
}

// checkFolder refuses to file a diagram into a folder the caller can't
// read. Diagrams that already sit in a folder stay there when a shared
// editor updates them.
func (s *DiagramService) checkFolder(ctx context.Context, caller model.Caller, folderID *string) error {
	if folderID == nil {
		return nil
	}
	f, err := s.folders.GetFolder(ctx, *folderID)
	if err != nil {
		return err
	}
	if !canReadFolder(caller, f) {
		return denyFolder(caller)
	}
	return nil
}

func sameFolder(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *DiagramService) load(ctx context.Context, id string) (*model.Diagram, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "diagram ID is required")
	}
	return s.diagrams.GetByID(ctx, id)
}

// apply copies the set fields of in onto d.
func apply(d *model.Diagram, in DiagramInput) {
	if in.Title != nil {
		d.Title = *in.Title
	}
	if in.Description != nil {
		d.Description = *in.Description
	}
	if in.Code != nil {
		d.Code = *in.Code
	}
	if in.Type != nil {
		d.Type = *in.Type
	}
	if in.Status != nil {
		d.Status = *in.Status
	}
	if in.IsPublic != nil {
		d.IsPublic = *in.IsPublic
	}
	if in.IsTemplate != nil {
		d.IsTemplate = *in.IsTemplate
	}
	if in.FolderID != nil {
		if folder := strings.TrimSpace(*in.FolderID); folder != "" {
			d.FolderID = &folder
		} else {
			d.FolderID = nil
		}
	}
	if in.Tags != nil {
		d.Tags = *in.Tags
	}
	if in.Thumbnail != nil {
		d.Thumbnail = *in.Thumbnail
	}
	if len(in.RenderSettings) > 0 {
		d.RenderSettings = renderSettingsText(in.RenderSettings)
	}
}

// renderSettingsText accepts render settings either as a JSON object or as a
// string holding JSON, and returns the text to store. "null" clears them.
func renderSettingsText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text // also covers null
	}
	return string(raw)
}
