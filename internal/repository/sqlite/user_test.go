package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

// createTestUser is a test helper that upserts a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, githubID int64, login string) *model.User {
	t.Helper()
	user := &model.User{
		GitHubID:  githubID,
		Login:     login,
		Email:     login + "@example.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/123",
	}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestUserGetByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, 111, "getbyid_user")

	found, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}

	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}
	if found.Login != "getbyid_user" {
		t.Errorf("Login = %q, want %q", found.Login, "getbyid_user")
	}
	if found.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", found.Role, model.RoleUser)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPSERT TESTS
// =========================================================================

func TestUserUpsert_ExistingUser_UpdatesProfile(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.User{GitHubID: 66666, Login: "original_login", Email: "old@example.com"}
	if err := db.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert() first login: %v", err)
	}

	second := &model.User{GitHubID: 66666, Login: "updated_login", Email: "new@example.com", Name: "Updated"}
	if err := db.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert() second login: %v", err)
	}

	// Same GitHub account, same internal ID
	if second.ID != first.ID {
		t.Errorf("Upsert() changed user ID: got %q, want %q", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Upsert() changed CreatedAt: got %v, want %v", second.CreatedAt, first.CreatedAt)
	}

	found, err := db.GetUserByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetUserByID() after second Upsert: %v", err)
	}
	if found.Login != "updated_login" || found.Email != "new@example.com" || found.Name != "Updated" {
		t.Errorf("profile after upsert = %+v", found)
	}
}

func TestUserUpsert_KeepsGrantedRole(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, 424242, "boss")

	if err := db.SetRole(ctx, u.ID, model.RoleAdmin); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}

	again := &model.User{GitHubID: 424242, Login: "boss"}
	if err := db.Upsert(ctx, again); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if again.Role != model.RoleAdmin {
		t.Errorf("Role after re-login = %q, want admin", again.Role)
	}
}

func TestSetRole_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.SetRole(context.Background(), "missing", model.RoleAdmin)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetRole() error = %v, want ErrNotFound", err)
	}
}
