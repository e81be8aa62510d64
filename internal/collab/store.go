package collab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

// jsonStore implements Store over any hashBackend, encoding values as JSON.
type jsonStore struct {
	backend hashBackend
}

var _ Store = (*jsonStore)(nil)

func (s *jsonStore) load(ctx context.Context, key, diagramID string, v any) error {
	data, ok, err := s.backend.hget(ctx, key, diagramID)
	if err != nil {
		return fmt.Errorf("%w: reading %s/%s: %v", ErrUnavailable, key, diagramID, err)
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("collab: decoding %s/%s: %w", key, diagramID, err)
	}
	return nil
}

func (s *jsonStore) save(ctx context.Context, key, diagramID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("collab: encoding %s/%s: %w", key, diagramID, err)
	}
	if err := s.backend.hset(ctx, key, diagramID, data); err != nil {
		return fmt.Errorf("%w: writing %s/%s: %v", ErrUnavailable, key, diagramID, err)
	}
	return nil
}

func (s *jsonStore) ActiveUsers(ctx context.Context, diagramID string) ([]model.ActiveUser, error) {
	users := []model.ActiveUser{}
	if err := s.load(ctx, ActiveUsersKey, diagramID, &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.ActiveUser{}
	}
	return users, nil
}

func (s *jsonStore) SetActiveUsers(ctx context.Context, diagramID string, users []model.ActiveUser) error {
	return s.save(ctx, ActiveUsersKey, diagramID, users)
}

func (s *jsonStore) Cursors(ctx context.Context, diagramID string) (map[string]model.CursorPosition, error) {
	cursors := map[string]model.CursorPosition{}
	if err := s.load(ctx, CursorsKey, diagramID, &cursors); err != nil {
		return nil, err
	}
	if cursors == nil {
		cursors = map[string]model.CursorPosition{}
	}
	return cursors, nil
}

func (s *jsonStore) SetCursors(ctx context.Context, diagramID string, cursors map[string]model.CursorPosition) error {
	return s.save(ctx, CursorsKey, diagramID, cursors)
}

func (s *jsonStore) EditingSessions(ctx context.Context, diagramID string) (map[string]model.EditingSession, error) {
	sessions := map[string]model.EditingSession{}
	if err := s.load(ctx, EditingSessionsKey, diagramID, &sessions); err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = map[string]model.EditingSession{}
	}
	return sessions, nil
}

func (s *jsonStore) SetEditingSessions(ctx context.Context, diagramID string, sessions map[string]model.EditingSession) error {
	return s.save(ctx, EditingSessionsKey, diagramID, sessions)
}

func (s *jsonStore) Forget(ctx context.Context, diagramID string) error {
	for _, key := range []string{ActiveUsersKey, CursorsKey, EditingSessionsKey} {
		if err := s.backend.hdel(ctx, key, diagramID); err != nil {
			return fmt.Errorf("%w: deleting %s/%s: %v", ErrUnavailable, key, diagramID, err)
		}
	}
	return nil
}

func (s *jsonStore) Ping(ctx context.Context) error {
	return s.backend.ping(ctx)
}
