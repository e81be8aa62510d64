package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/collab"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

// collabEnv returns an env with a pinned clock and a diagram alice shares
// with bob for writing.
func collabEnv(t *testing.T) (*testEnv, *model.Diagram, *time.Time) {
	t.Helper()
	env := newTestEnv(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	env.setClock(&now)
	d := env.createDiagram(t, alice, "pairing", "graph TD; A")
	env.share(t, alice, d, bob, model.PermissionWrite)
	return env, d, &now
}

func TestCollabActiveUsers(t *testing.T) {
	env, d, now := collabEnv(t)
	ctx := context.Background()

	if _, err := env.collab.ActiveUsers(ctx, alice, d.ID); err != nil {
		t.Fatalf("ActiveUsers() error = %v", err)
	}
	*now = now.Add(time.Minute)
	users, err := env.collab.ActiveUsers(ctx, bob, d.ID)
	if err != nil {
		t.Fatalf("ActiveUsers() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d active users, want 2", len(users))
	}

	*now = now.Add(time.Minute)
	users, _ = env.collab.ActiveUsers(ctx, alice, d.ID)
	if len(users) != 2 {
		t.Fatalf("repeat visit added a duplicate: %+v", users)
	}
	if !users[0].LastActive.Equal(*now) || users[0].FullName != "Alice" {
		t.Errorf("alice entry = %+v, want refreshed", users[0])
	}
}

func TestCollabCursors_HideStale(t *testing.T) {
	env, d, now := collabEnv(t)
	ctx := context.Background()

	if _, err := env.collab.UpdateCursor(ctx, alice, d.ID, json.RawMessage(`{"line":1}`)); err != nil {
		t.Fatalf("UpdateCursor() error = %v", err)
	}
	*now = now.Add(30 * time.Second)
	all, err := env.collab.UpdateCursor(ctx, bob, d.ID, json.RawMessage(`"{\"line\":4}"`))
	if err != nil {
		t.Fatalf("UpdateCursor() error = %v", err)
	}
	if len(all) != 2 || string(all["bob"].Position) != `{"line":4}` {
		t.Errorf("UpdateCursor() = %+v", all)
	}

	// alice's cursor turns 60s old, bob's is 30s old.
	*now = now.Add(30 * time.Second)
	fresh, err := env.collab.Cursors(ctx, bob, d.ID)
	if err != nil {
		t.Fatalf("Cursors() error = %v", err)
	}
	if _, ok := fresh["alice"]; ok {
		t.Error("stale cursor should be hidden")
	}
	if _, ok := fresh["bob"]; !ok {
		t.Error("fresh cursor missing")
	}

	_, err = env.collab.UpdateCursor(ctx, alice, d.ID, nil)
	assertKind(t, err, apperror.ErrValidation)
}

func TestCollabEditingSession(t *testing.T) {
	env, d, now := collabEnv(t)
	ctx := context.Background()

	res, err := env.collab.StartEditing(ctx, alice, d.ID)
	if err != nil || !res.Success || res.Message != "Editing session started" {
		t.Fatalf("StartEditing(alice) = %+v, %v", res, err)
	}

	*now = now.Add(299 * time.Second)
	res, err = env.collab.StartEditing(ctx, bob, d.ID)
	if err != nil {
		t.Fatalf("StartEditing(bob) error = %v", err)
	}
	if res.Success || res.Message != "Alice is currently editing this diagram" {
		t.Errorf("StartEditing(bob) = %+v, want refusal naming Alice", res)
	}

	// Re-claiming your own session refreshes it.
	res, _ = env.collab.StartEditing(ctx, alice, d.ID)
	if !res.Success {
		t.Errorf("owner restart refused: %+v", res)
	}

	*now = now.Add(300 * time.Second)
	res, _ = env.collab.StartEditing(ctx, bob, d.ID)
	if !res.Success {
		t.Errorf("StartEditing(bob) after timeout = %+v, want takeover", res)
	}

	res, err = env.collab.EndEditing(ctx, bob, d.ID)
	if err != nil || res.Message != "Editing session ended" {
		t.Fatalf("EndEditing() = %+v, %v", res, err)
	}
	// Ending twice is harmless.
	if _, err := env.collab.EndEditing(ctx, bob, d.ID); err != nil {
		t.Errorf("second EndEditing() error = %v", err)
	}
}

func TestCollab_Access(t *testing.T) {
	env, d, _ := collabEnv(t)
	ctx := context.Background()

	_, err := env.collab.ActiveUsers(ctx, guest, d.ID)
	assertKind(t, err, apperror.ErrUnauthorized)
	_, err = env.collab.StartEditing(ctx, carol, d.ID)
	assertKind(t, err, apperror.ErrForbidden)
	_, err = env.collab.Cursors(ctx, alice, "nope")
	assertKind(t, err, apperror.ErrNotFound)
}

func TestCollab_StoreDown(t *testing.T) {
	env, d, _ := collabEnv(t)
	env.collab.store = brokenStore{collab.NewMemoryStore()}

	_, err := env.collab.Cursors(context.Background(), alice, d.ID)
	if !errors.Is(err, collab.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if apperror.IsKind(err) {
		t.Error("store outage must not look like a caller error")
	}
}

func TestCollabForget(t *testing.T) {
	env, d, _ := collabEnv(t)
	ctx := context.Background()
	env.collab.ActiveUsers(ctx, alice, d.ID)
	env.collab.StartEditing(ctx, alice, d.ID)

	env.collab.Forget(ctx, d.ID)

	res, _ := env.collab.StartEditing(ctx, bob, d.ID)
	if !res.Success {
		t.Errorf("session survived Forget: %+v", res)
	}
}
