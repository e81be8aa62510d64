package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
)

// VersionService reads a diagram's snapshot history, diffs snapshots and
// restores old code. It never creates snapshots itself; that only happens
// through DiagramService saves.
type VersionService struct {
	versions repository.VersionRepository
	diagrams *DiagramService
	logger   *slog.Logger
}

func NewVersionService(versions repository.VersionRepository, diagrams *DiagramService, logger *slog.Logger) *VersionService {
	return &VersionService{
		versions: versions,
		diagrams: diagrams,
		logger:   logger,
	}
}

// List returns the snapshots of a readable diagram, newest first.
func (s *VersionService) List(ctx context.Context, caller model.Caller, diagramID string) ([]model.Version, error) {
	if _, err := s.diagrams.Get(ctx, caller, diagramID); err != nil {
		return nil, err
	}
	versions, err := s.versions.ListVersions(ctx, diagramID)
	if err != nil {
		s.logger.Error("failed to list versions",
			slog.String("diagram", diagramID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing versions of %s: %w", diagramID, err)
	}
	return versions, nil
}

// Diff returns a unified diff from compareID to versionID. With an empty
// compareID the next-lower version of the same diagram is used. Identical
// texts produce "".
func (s *VersionService) Diff(ctx context.Context, caller model.Caller, versionID, compareID string) (string, error) {
	v, err := s.readable(ctx, caller, versionID)
	if err != nil {
		return "", err
	}

	var prev *model.Version
	if compareID = strings.TrimSpace(compareID); compareID == "" {
		prev, err = s.versions.PreviousVersion(ctx, v.DiagramID, v.VersionNumber)
	} else {
		prev, err = s.versions.GetVersion(ctx, compareID)
	}
	if err != nil {
		return "", err
	}
	if prev.DiagramID != v.DiagramID {
		return "", apperror.ValidationFailed("compare", "versions belong to different diagrams")
	}

	return unifiedDiff(prev, v)
}

// Restore copies a snapshot's code back onto its diagram. It reports whether
// anything changed; restoring the current code is a no-op and creates no
// version.
func (s *VersionService) Restore(ctx context.Context, caller model.Caller, versionID string) (bool, error) {
	v, err := s.load(ctx, versionID)
	if err != nil {
		return false, err
	}

	d, err := s.diagrams.load(ctx, v.DiagramID)
	if err != nil {
		return false, err
	}
	if err := s.diagrams.authz.Require(ctx, caller, d, model.PermissionWrite); err != nil {
		return false, err
	}
	if d.Code == v.Code {
		return false, nil
	}

	prevCode := d.Code
	d.Code = v.Code
	notes := "Restored from version " + strconv.Itoa(v.VersionNumber)
	if err := s.diagrams.save(ctx, caller, d, prevCode, notes); err != nil {
		return false, err
	}

	s.logger.Info("version restored",
		slog.String("diagram", d.ID),
		slog.Int("from", v.VersionNumber),
		slog.Int("newVersion", d.Version),
	)
	return true, nil
}

func (s *VersionService) load(ctx context.Context, id string) (*model.Version, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "version ID is required")
	}
	return s.versions.GetVersion(ctx, id)
}

// readable loads a version and checks the caller can read its diagram.
func (s *VersionService) readable(ctx context.Context, caller model.Caller, id string) (*model.Version, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.diagrams.Get(ctx, caller, v.DiagramID); err != nil {
		return nil, err
	}
	return v, nil
}

func unifiedDiff(from, to *model.Version) (string, error) {
	if from.Code == to.Code {
		return "", nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from.Code),
		B:        difflib.SplitLines(to.Code),
		FromFile: "v" + strconv.Itoa(from.VersionNumber),
		ToFile:   "v" + strconv.Itoa(to.VersionNumber),
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("diffing versions %s and %s: %w", from.ID, to.ID, err)
	}
	return diff, nil
}
