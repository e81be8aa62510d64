package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/collab"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

// CollabService keeps presence hints for people looking at the same
// diagram: who is active, where their cursors are and who holds the editor.
//
// Every operation reads the whole per-diagram value, changes it and writes
// it back. Two requests racing on the same diagram may lose one update;
// the next poll repairs it. The editing session is advisory: clients are
// expected to honour a refused start, nothing else enforces it.
type CollabService struct {
	store    collab.Store
	diagrams *DiagramService
	logger   *slog.Logger
	now      clock
}

func NewCollabService(store collab.Store, diagrams *DiagramService, logger *slog.Logger) *CollabService {
	return &CollabService{
		store:    store,
		diagrams: diagrams,
		logger:   logger,
		now:      systemClock,
	}
}

// ActiveUsers marks the caller active on the diagram and returns everyone
// who has been.
func (s *CollabService) ActiveUsers(ctx context.Context, caller model.Caller, diagramID string) ([]model.ActiveUser, error) {
	if err := s.check(ctx, caller, diagramID); err != nil {
		return nil, err
	}

	users, err := s.store.ActiveUsers(ctx, diagramID)
	if err != nil {
		return nil, s.storeError("reading active users", diagramID, err)
	}

	now := s.now()
	found := false
	for i := range users {
		if users[i].User == caller.UserID {
			users[i].LastActive = now
			found = true
			break
		}
	}
	if !found {
		users = append(users, model.ActiveUser{
			User:       caller.UserID,
			FullName:   caller.Name,
			LastActive: now,
		})
	}

	if err := s.store.SetActiveUsers(ctx, diagramID, users); err != nil {
		return nil, s.storeError("saving active users", diagramID, err)
	}
	return users, nil
}

// UpdateCursor records the caller's cursor and returns every stored cursor,
// stale ones included.
func (s *CollabService) UpdateCursor(ctx context.Context, caller model.Caller, diagramID string, position json.RawMessage) (map[string]model.CursorPosition, error) {
	if err := s.check(ctx, caller, diagramID); err != nil {
		return nil, err
	}
	pos, err := normalizePosition(position)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, apperror.ValidationFailed("position", "position is required")
	}

	cursors, err := s.store.Cursors(ctx, diagramID)
	if err != nil {
		return nil, s.storeError("reading cursors", diagramID, err)
	}
	cursors[caller.UserID] = model.CursorPosition{
		Position:  pos,
		Timestamp: s.now(),
		User:      caller.UserID,
		FullName:  caller.Name,
	}
	if err := s.store.SetCursors(ctx, diagramID, cursors); err != nil {
		return nil, s.storeError("saving cursors", diagramID, err)
	}
	return cursors, nil
}

// Cursors returns the cursors updated within CursorStaleAfter. Older
// entries stay stored; they are only hidden.
func (s *CollabService) Cursors(ctx context.Context, caller model.Caller, diagramID string) (map[string]model.CursorPosition, error) {
	if err := s.check(ctx, caller, diagramID); err != nil {
		return nil, err
	}

	cursors, err := s.store.Cursors(ctx, diagramID)
	if err != nil {
		return nil, s.storeError("reading cursors", diagramID, err)
	}

	now := s.now()
	fresh := make(map[string]model.CursorPosition, len(cursors))
	for user, c := range cursors {
		if now.Sub(c.Timestamp) < CursorStaleAfter {
			fresh[user] = c
		}
	}
	return fresh, nil
}

// StartEditing claims the editor for the caller unless somebody else
// claimed it less than SessionStaleAfter ago. A refusal is a normal result
// with Success=false, not an error.
func (s *CollabService) StartEditing(ctx context.Context, caller model.Caller, diagramID string) (*model.SessionResult, error) {
	if err := s.check(ctx, caller, diagramID); err != nil {
		return nil, err
	}

	sessions, err := s.store.EditingSessions(ctx, diagramID)
	if err != nil {
		return nil, s.storeError("reading editing sessions", diagramID, err)
	}

	now := s.now()
	for user, session := range sessions {
		if user != caller.UserID && now.Sub(session.Timestamp) < SessionStaleAfter {
			return &model.SessionResult{
				Success: false,
				Message: fmt.Sprintf("%s is currently editing this diagram", session.FullName),
			}, nil
		}
	}

	sessions[caller.UserID] = model.EditingSession{
		Timestamp: now,
		User:      caller.UserID,
		FullName:  caller.Name,
	}
	if err := s.store.SetEditingSessions(ctx, diagramID, sessions); err != nil {
		return nil, s.storeError("saving editing sessions", diagramID, err)
	}

	s.logger.Debug("editing session started", slog.String("diagram", diagramID), slog.String("user", caller.UserID))
	return &model.SessionResult{Success: true, Message: "Editing session started"}, nil
}

// EndEditing drops the caller's session, whether or not one exists.
func (s *CollabService) EndEditing(ctx context.Context, caller model.Caller, diagramID string) (*model.SessionResult, error) {
	if err := s.check(ctx, caller, diagramID); err != nil {
		return nil, err
	}

	sessions, err := s.store.EditingSessions(ctx, diagramID)
	if err != nil {
		return nil, s.storeError("reading editing sessions", diagramID, err)
	}
	delete(sessions, caller.UserID)
	if err := s.store.SetEditingSessions(ctx, diagramID, sessions); err != nil {
		return nil, s.storeError("saving editing sessions", diagramID, err)
	}

	s.logger.Debug("editing session ended", slog.String("diagram", diagramID), slog.String("user", caller.UserID))
	return &model.SessionResult{Success: true, Message: "Editing session ended"}, nil
}

// Forget clears all collaboration state of a deleted diagram. Failures are
// logged only; the entries would go stale anyway.
func (s *CollabService) Forget(ctx context.Context, diagramID string) {
	if err := s.store.Forget(ctx, diagramID); err != nil {
		s.logger.Warn("failed to clear collaboration state",
			slog.String("diagram", diagramID),
			slog.String("error", err.Error()),
		)
	}
}

// check requires a signed-in caller with read access.
func (s *CollabService) check(ctx context.Context, caller model.Caller, diagramID string) error {
	if caller.IsGuest() {
		return apperror.Unauthorized()
	}
	_, err := s.diagrams.Get(ctx, caller, diagramID)
	return err
}

func (s *CollabService) storeError(action, diagramID string, err error) error {
	s.logger.Error("collaboration store failure",
		slog.String("action", action),
		slog.String("diagram", diagramID),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%s for %s: %w", action, diagramID, err)
}
