package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
)

// =========================================================================
// VERSION TESTS
// =========================================================================

func TestVersions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDiagram(t, db, "versioned", "alice")

	for i, code := range []string{"graph TD; A", "graph TD; A-->B", "graph TD; A-->C"} {
		if err := db.CreateVersion(ctx, &model.Version{DiagramID: d.ID, VersionNumber: i + 1, Code: code}); err != nil {
			t.Fatalf("CreateVersion(%d) error = %v", i+1, err)
		}
	}

	versions, err := db.ListVersions(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(versions) != 3 || versions[0].VersionNumber != 3 || versions[2].VersionNumber != 1 {
		t.Fatalf("ListVersions() = %+v, want 3,2,1", versions)
	}

	prev, err := db.PreviousVersion(ctx, d.ID, 3)
	if err != nil {
		t.Fatalf("PreviousVersion() error = %v", err)
	}
	if prev.VersionNumber != 2 {
		t.Errorf("PreviousVersion(3) = %d, want 2", prev.VersionNumber)
	}

	if _, err := db.PreviousVersion(ctx, d.ID, 1); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("PreviousVersion(1) error = %v, want ErrNotFound", err)
	}

	err = db.CreateVersion(ctx, &model.Version{DiagramID: d.ID, VersionNumber: 2, Code: "dup"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate CreateVersion() error = %v, want ErrConflict", err)
	}

	got, err := db.GetVersion(ctx, versions[1].ID)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if got.Code != "graph TD; A-->B" {
		t.Errorf("GetVersion().Code = %q", got.Code)
	}
}

// =========================================================================
// SHARE TESTS
// =========================================================================

func TestShares(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDiagram(t, db, "shared", "alice")

	expires := time.Now().Add(48 * time.Hour)
	s := &model.Share{
		DiagramID:       d.ID,
		SharedWith:      "bob@example.com",
		PermissionLevel: model.PermissionWrite,
		ExpiresAt:       &expires,
		Token:           "abc123",
		CreatedBy:       "alice",
	}
	if err := db.CreateShare(ctx, s); err != nil {
		t.Fatalf("CreateShare() error = %v", err)
	}

	byToken, err := db.GetShareByToken(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetShareByToken() error = %v", err)
	}
	if byToken.ID != s.ID || byToken.PermissionLevel != model.PermissionWrite {
		t.Errorf("GetShareByToken() = %+v", byToken)
	}
	if byToken.ExpiresAt == nil || !byToken.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", byToken.ExpiresAt, expires)
	}

	exists, err := db.TokenExists(ctx, "abc123")
	if err != nil || !exists {
		t.Errorf("TokenExists() = %v, %v; want true", exists, err)
	}

	_, err = db.GetShareByToken(ctx, "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetShareByToken(unknown) error = %v, want ErrNotFound", err)
	}

	dup := &model.Share{DiagramID: d.ID, SharedWith: "carol@example.com", PermissionLevel: model.PermissionRead, Token: "abc123"}
	if err := db.CreateShare(ctx, dup); !errors.Is(err, repository.ErrDuplicateToken) {
		t.Errorf("CreateShare(dup token) error = %v, want ErrDuplicateToken", err)
	}

	found, err := db.FindShareFor(ctx, d.ID, "bob@example.com")
	if err != nil {
		t.Fatalf("FindShareFor() error = %v", err)
	}
	if len(found) != 1 {
		t.Errorf("FindShareFor() returned %d, want 1", len(found))
	}

	if err := db.DeleteShare(ctx, s.ID); err != nil {
		t.Fatalf("DeleteShare() error = %v", err)
	}
	if _, err := db.GetShare(ctx, s.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetShare(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteExpiredBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDiagram(t, db, "shared", "alice")

	old := time.Now().Add(-60 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	for i, exp := range []*time.Time{&old, &recent, nil} {
		s := &model.Share{
			DiagramID: d.ID, SharedWith: "x@example.com",
			PermissionLevel: model.PermissionRead, ExpiresAt: exp,
			Token: string(rune('a' + i)),
		}
		if err := db.CreateShare(ctx, s); err != nil {
			t.Fatalf("CreateShare() error = %v", err)
		}
	}

	n, err := db.DeleteExpiredBefore(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpiredBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	left, err := db.ListShares(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListShares() error = %v", err)
	}
	if len(left) != 2 {
		t.Errorf("remaining shares = %d, want 2", len(left))
	}
}

// =========================================================================
// COMMENT TESTS
// =========================================================================

func TestComments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDiagram(t, db, "discussed", "alice")

	first := &model.Comment{DiagramID: d.ID, Owner: "alice", Content: "first", Position: []byte(`{"x":1}`)}
	second := &model.Comment{DiagramID: d.ID, Owner: "bob", Content: "second"}
	for _, c := range []*model.Comment{first, second} {
		if err := db.CreateComment(ctx, c); err != nil {
			t.Fatalf("CreateComment() error = %v", err)
		}
	}

	comments, err := db.ListComments(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 2 || comments[0].Content != "second" {
		t.Fatalf("ListComments() = %+v, want newest first", comments)
	}
	if comments[0].Position != nil {
		t.Errorf("Position = %s, want nil", comments[0].Position)
	}
	if string(comments[1].Position) != `{"x":1}` {
		t.Errorf("Position = %s, want {\"x\":1}", comments[1].Position)
	}

	if err := db.DeleteComment(ctx, first.ID); err != nil {
		t.Fatalf("DeleteComment() error = %v", err)
	}
	if _, err := db.GetComment(ctx, first.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetComment(deleted) error = %v, want ErrNotFound", err)
	}
}
