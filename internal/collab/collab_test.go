package collab

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// stores runs the same test body against both implementations.
func stores(t *testing.T) map[string]Store {
	_, client := setupTestRedis(t)
	return map[string]Store{
		"redis":  NewRedisStore(client),
		"memory": NewMemoryStore(),
	}
}

func TestStore_EmptyValues(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			users, err := s.ActiveUsers(ctx, "d1")
			require.NoError(t, err)
			assert.NotNil(t, users)
			assert.Empty(t, users)

			cursors, err := s.Cursors(ctx, "d1")
			require.NoError(t, err)
			assert.NotNil(t, cursors)

			sessions, err := s.EditingSessions(ctx, "d1")
			require.NoError(t, err)
			assert.NotNil(t, sessions)
		})
	}
}

func TestStore_RoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.SetActiveUsers(ctx, "d1", []model.ActiveUser{
				{User: "u1", FullName: "Ada", LastActive: now},
			}))
			require.NoError(t, s.SetCursors(ctx, "d1", map[string]model.CursorPosition{
				"u1": {Position: json.RawMessage(`{"line":3}`), Timestamp: now, User: "u1"},
			}))
			require.NoError(t, s.SetEditingSessions(ctx, "d1", map[string]model.EditingSession{
				"u1": {Timestamp: now, User: "u1", FullName: "Ada"},
			}))

			users, err := s.ActiveUsers(ctx, "d1")
			require.NoError(t, err)
			require.Len(t, users, 1)
			assert.Equal(t, "Ada", users[0].FullName)
			assert.True(t, users[0].LastActive.Equal(now))

			cursors, err := s.Cursors(ctx, "d1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"line":3}`, string(cursors["u1"].Position))

			// other diagrams are untouched
			other, err := s.ActiveUsers(ctx, "d2")
			require.NoError(t, err)
			assert.Empty(t, other)

			require.NoError(t, s.Forget(ctx, "d1"))
			sessions, err := s.EditingSessions(ctx, "d1")
			require.NoError(t, err)
			assert.Empty(t, sessions)
		})
	}
}

func TestRedisStore_UsesHashKeys(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := NewRedisStore(client)

	require.NoError(t, s.SetActiveUsers(context.Background(), "diagram-42", []model.ActiveUser{{User: "u1"}}))

	raw := mr.HGet(ActiveUsersKey, "diagram-42")
	assert.Contains(t, raw, `"user":"u1"`)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := NewRedisStore(client)
	mr.Close()

	_, err := s.ActiveUsers(context.Background(), "d1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Error(t, s.Ping(context.Background()))
}
