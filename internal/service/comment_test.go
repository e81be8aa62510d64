package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

func TestCommentAdd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.createDiagram(t, alice, "discussed", "pie")
	env.share(t, alice, d, bob, model.PermissionRead)

	tests := []struct {
		name     string
		position string
		want     string
	}{
		{"no position", "", ""},
		{"null position", "null", ""},
		{"object", `{"x":10,"y":20}`, `{"x":10,"y":20}`},
		{"string holding json", `"{\"node\":\"A\"}"`, `{"node":"A"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Read access is enough to comment.
			c, err := env.comments.Add(ctx, bob, d.ID, "  looks good ", json.RawMessage(tt.position))
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if c.Content != "looks good" || c.Owner != "bob" {
				t.Errorf("Add() = %+v", c)
			}
			if string(c.Position) != tt.want {
				t.Errorf("Position = %s, want %s", c.Position, tt.want)
			}
		})
	}

	list, err := env.comments.List(ctx, alice, d.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != len(tests) {
		t.Errorf("List() = %d comments, want %d", len(list), len(tests))
	}
}

func TestCommentAdd_Rejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.createDiagram(t, alice, "discussed", "pie")

	tests := []struct {
		name     string
		caller   model.Caller
		text     string
		position string
		want     error
	}{
		{"guest", guest, "hi", "", apperror.ErrUnauthorized},
		{"no access", bob, "hi", "", apperror.ErrForbidden},
		{"empty", alice, "   ", "", apperror.ErrValidation},
		{"too long", alice, strings.Repeat("x", MaxCommentLength+1), "", apperror.ErrValidation},
		{"bad position", alice, "hi", `"{oops"`, apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.comments.Add(ctx, tt.caller, d.ID, tt.text, json.RawMessage(tt.position))
			assertKind(t, err, tt.want)
		})
	}

	_, err := env.comments.Add(ctx, alice, "nope", "hi", nil)
	assertKind(t, err, apperror.ErrNotFound)
}

func TestCommentDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d, _ := env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("open"), IsPublic: ptr(true)})

	c, err := env.comments.Add(ctx, bob, d.ID, "mine", nil)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// Owning the diagram is not owning the comment.
	assertKind(t, env.comments.Delete(ctx, alice, c.ID), apperror.ErrForbidden)
	assertKind(t, env.comments.Delete(ctx, guest, c.ID), apperror.ErrUnauthorized)

	if err := env.comments.Delete(ctx, bob, c.ID); err != nil {
		t.Fatalf("Delete() by author error = %v", err)
	}
	assertKind(t, env.comments.Delete(ctx, bob, c.ID), apperror.ErrNotFound)

	other, _ := env.comments.Add(ctx, carol, d.ID, "spam", nil)
	if err := env.comments.Delete(ctx, root, other.ID); err != nil {
		t.Fatalf("Delete() by admin error = %v", err)
	}
}
