package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
)

// FolderInput is the create/update request. Nil fields are left alone;
// an empty ParentID makes the folder top-level.
type FolderInput struct {
	Name     *string `json:"folder_name"`
	ParentID *string `json:"parent_folder"`
	IsPublic *bool   `json:"is_public"`
}

// FolderService manages the folder tree. Folders are readable by their
// owner, administrators and (when public) everyone; only the owner or an
// administrator may change them.
type FolderService struct {
	folders  repository.FolderRepository
	diagrams repository.DiagramRepository
	listing  *DiagramService
	logger   *slog.Logger
}

func NewFolderService(
	folders repository.FolderRepository,
	diagrams repository.DiagramRepository,
	listing *DiagramService,
	logger *slog.Logger,
) *FolderService {
	return &FolderService{
		folders:  folders,
		diagrams: diagrams,
		listing:  listing,
		logger:   logger,
	}
}

func (s *FolderService) Create(ctx context.Context, caller model.Caller, in FolderInput) (*model.Folder, error) {
	if caller.IsGuest() {
		return nil, apperror.Unauthorized()
	}

	f := &model.Folder{Owner: caller.UserID}
	applyFolder(f, in)
	if err := s.validate(ctx, f); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, caller, f.ParentID); err != nil {
		return nil, err
	}

	if err := s.folders.CreateFolder(ctx, f); err != nil {
		s.logger.Error("failed to create folder",
			slog.String("name", f.Name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating folder: %w", err)
	}

	s.logger.Info("folder created", slog.String("id", f.ID), slog.String("name", f.Name))
	return f, nil
}

func (s *FolderService) Get(ctx context.Context, caller model.Caller, id string) (*model.Folder, error) {
	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canReadFolder(caller, f) {
		return nil, denyFolder(caller)
	}
	return f, nil
}

// Update renames, reparents or changes the visibility of a folder.
func (s *FolderService) Update(ctx context.Context, caller model.Caller, id string, in FolderInput) (*model.Folder, error) {
	f, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	prevParent := f.ParentID
	applyFolder(f, in)
	if err := s.validate(ctx, f); err != nil {
		return nil, err
	}
	if !sameFolder(prevParent, f.ParentID) {
		if err := s.checkParent(ctx, caller, f.ParentID); err != nil {
			return nil, err
		}
	}

	if err := s.folders.UpdateFolder(ctx, f); err != nil {
		if apperror.IsKind(err) {
			return nil, err
		}
		return nil, fmt.Errorf("updating folder %s: %w", id, err)
	}

	s.logger.Info("folder updated", slog.String("id", f.ID), slog.String("name", f.Name))
	return f, nil
}

// Delete removes a folder. Its diagrams are kept without a folder and its
// subfolders move to the top level.
func (s *FolderService) Delete(ctx context.Context, caller model.Caller, id string) error {
	f, err := s.owned(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := s.folders.DeleteFolder(ctx, f.ID); err != nil {
		return err
	}
	s.logger.Info("folder deleted", slog.String("id", f.ID), slog.String("by", caller.UserID))
	return nil
}

// List returns the folders directly under parentID ("" = top level) that
// the caller can see, by name. Administrators see every folder.
func (s *FolderService) List(ctx context.Context, caller model.Caller, parentID string) ([]model.Folder, error) {
	parentID = strings.TrimSpace(parentID)
	folders, err := s.folders.ListFolders(ctx, repository.FolderFilter{
		ParentID: parentID,
		Owner:    caller.UserID,
		All:      caller.Admin,
	})
	if err != nil {
		s.logger.Error("failed to list folders", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return folders, nil
}

// Subfolders lists the visible children of a readable folder.
func (s *FolderService) Subfolders(ctx context.Context, caller model.Caller, id string) ([]model.Folder, error) {
	f, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, caller, f.ID)
}

// Diagrams lists the diagrams of a readable folder that the caller can see.
func (s *FolderService) Diagrams(ctx context.Context, caller model.Caller, id string, limit, offset int) ([]model.DiagramSummary, error) {
	f, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.listing.List(ctx, caller, ListQuery{FolderID: f.ID, Limit: limit, Offset: offset})
}

// MoveDiagrams reassigns every diagram of folder id to target ("" = no
// folder) and returns how many moved.
func (s *FolderService) MoveDiagrams(ctx context.Context, caller model.Caller, id, target string) (int64, error) {
	f, err := s.owned(ctx, caller, id)
	if err != nil {
		return 0, err
	}

	var to *string
	if target = strings.TrimSpace(target); target != "" {
		if target == f.ID {
			return 0, apperror.ValidationFailed("target_folder", "target folder is the source folder")
		}
		dst, err := s.owned(ctx, caller, target)
		if err != nil {
			return 0, err
		}
		to = &dst.ID
	}

	n, err := s.diagrams.MoveFolder(ctx, f.ID, to)
	if err != nil {
		s.logger.Error("failed to move diagrams",
			slog.String("from", f.ID),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("moving diagrams from %s: %w", f.ID, err)
	}

	s.logger.Info("diagrams moved",
		slog.String("from", f.ID),
		slog.String("to", target),
		slog.Int64("count", n),
	)
	return n, nil
}

// ValidateParent rejects a parent assignment that would make the tree loop.
//
// It walks upward from parentID. The visited set starts with the folder's
// own ID, so reaching it again means the new parent sits below the folder.
// A brand new folder passes an empty folderID.
func (s *FolderService) ValidateParent(ctx context.Context, folderID, parentID string) error {
	if parentID == "" {
		return nil
	}
	if folderID != "" && parentID == folderID {
		return apperror.ValidationFailed("parent_folder", "a folder cannot be its own parent")
	}

	visited := map[string]bool{}
	if folderID != "" {
		visited[folderID] = true
	}
	for current := parentID; current != ""; {
		if visited[current] {
			return apperror.ValidationFailed("parent_folder", "circular reference detected in folder structure")
		}
		visited[current] = true

		f, err := s.folders.GetFolder(ctx, current)
		if err != nil {
			return err
		}
		if f.ParentID == nil {
			break
		}
		current = *f.ParentID
	}
	return nil
}

// checkParent refuses to nest a folder under one the caller can't read.
func (s *FolderService) checkParent(ctx context.Context, caller model.Caller, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, err := s.folders.GetFolder(ctx, *parentID)
	if err != nil {
		return err
	}
	if !canReadFolder(caller, parent) {
		return denyFolder(caller)
	}
	return nil
}

func (s *FolderService) validate(ctx context.Context, f *model.Folder) error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return apperror.ValidationFailed("folder_name", "folder name is required")
	}
	if utf8.RuneCountInString(f.Name) > MaxFolderName {
		return apperror.ValidationFailed("folder_name",
			fmt.Sprintf("folder name must be %d characters or less", MaxFolderName))
	}
	if f.ParentID != nil {
		return s.ValidateParent(ctx, f.ID, *f.ParentID)
	}
	return nil
}

func (s *FolderService) load(ctx context.Context, id string) (*model.Folder, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "folder ID is required")
	}
	return s.folders.GetFolder(ctx, id)
}

// owned loads a folder the caller may change.
func (s *FolderService) owned(ctx context.Context, caller model.Caller, id string) (*model.Folder, error) {
	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Admin || (!caller.IsGuest() && f.Owner == caller.UserID) {
		return f, nil
	}
	return nil, denyFolder(caller)
}

func canReadFolder(caller model.Caller, f *model.Folder) bool {
	return f.IsPublic || caller.Admin || (!caller.IsGuest() && f.Owner == caller.UserID)
}

func denyFolder(caller model.Caller) error {
	if caller.IsGuest() {
		return apperror.Unauthorized()
	}
	return apperror.Forbidden("you don't have access to this folder")
}

func applyFolder(f *model.Folder, in FolderInput) {
	if in.Name != nil {
		f.Name = *in.Name
	}
	if in.ParentID != nil {
		if parent := strings.TrimSpace(*in.ParentID); parent != "" {
			f.ParentID = &parent
		} else {
			f.ParentID = nil
		}
	}
	if in.IsPublic != nil {
		f.IsPublic = *in.IsPublic
	}
}
