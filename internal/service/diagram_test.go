package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestDiagramCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d, err := env.diagrams.Create(ctx, alice, DiagramInput{
		Title: ptr("  Login flow  "),
		Code:  ptr("sequenceDiagram\nAlice->>Bob: hi"),
		Tags:  ptr([]string{" Auth", "auth", "", "Flows"}),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if d.Title != "Login flow" {
		t.Errorf("Title = %q, want trimmed", d.Title)
	}
	if d.Type != model.TypeSequence {
		t.Errorf("Type = %q, want inferred %q", d.Type, model.TypeSequence)
	}
	if d.Status != model.StatusDraft {
		t.Errorf("Status = %q, want default draft", d.Status)
	}
	if d.Owner != "alice" || d.CreatedBy != "alice" {
		t.Errorf("Owner/CreatedBy = %q/%q, want alice", d.Owner, d.CreatedBy)
	}
	if d.Version != 0 {
		t.Errorf("Version = %d, want 0 for a new diagram", d.Version)
	}
	if d.LastRendered == nil {
		t.Error("LastRendered should be stamped on save")
	}
	if strings.Join(d.Tags, ",") != "auth,flows" {
		t.Errorf("Tags = %v, want [auth flows]", d.Tags)
	}

	n, _ := env.db.CountVersions(ctx, d.ID)
	if n != 0 {
		t.Errorf("new diagram has %d versions, want 0", n)
	}
}

func TestDiagramCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		caller model.Caller
		in     DiagramInput
		want   error
	}{
		{"guest", guest, DiagramInput{Title: ptr("x")}, apperror.ErrUnauthorized},
		{"missing title", alice, DiagramInput{Title: ptr("   ")}, apperror.ErrValidation},
		{"long title", alice, DiagramInput{Title: ptr(strings.Repeat("a", MaxTitleLength+1))}, apperror.ErrValidation},
		{"long code", alice, DiagramInput{Title: ptr("x"), Code: ptr(strings.Repeat("a", MaxCodeLength+1))}, apperror.ErrValidation},
		{"bad status", alice, DiagramInput{Title: ptr("x"), Status: ptr(model.DiagramStatus("gone"))}, apperror.ErrValidation},
		{"bad type", alice, DiagramInput{Title: ptr("x"), Type: ptr(model.DiagramType("venn"))}, apperror.ErrValidation},
		{"bad render settings", alice, DiagramInput{Title: ptr("x"), RenderSettings: json.RawMessage(`"{nope"`)}, apperror.ErrValidation},
		{"unknown folder", alice, DiagramInput{Title: ptr("x"), FolderID: ptr("nope")}, apperror.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.diagrams.Create(ctx, tt.caller, tt.in)
			assertKind(t, err, tt.want)
		})
	}
}

func TestDiagramCreate_TypeInference(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		code string
		want model.DiagramType
	}{
		{"graph TD; A-->B", model.TypeFlowchart},
		{"  Flowchart LR\nA-->B", model.TypeFlowchart},
		{"sequenceDiagram", model.TypeSequence},
		{"classDiagram\nA <|-- B", model.TypeClass},
		{"stateDiagram-v2", model.TypeState},
		{"gantt\ntitle x", model.TypeGantt},
		{"pie title Pets", model.TypePie},
		{"hello", model.TypeOther},
		{"", model.TypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			d := env.createDiagram(t, alice, "typed", tt.code)
			if d.Type != tt.want {
				t.Errorf("Type for %q = %q, want %q", tt.code, d.Type, tt.want)
			}
		})
	}
}

func TestDiagramCreate_RenderSettingsForms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for name, raw := range map[string]string{
		"object": `{"theme":"dark"}`,
		"string": `"{\"theme\":\"dark\"}"`,
	} {
		t.Run(name, func(t *testing.T) {
			d, err := env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("r"), RenderSettings: json.RawMessage(raw)})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if d.RenderSettings != `{"theme":"dark"}` {
				t.Errorf("RenderSettings = %q", d.RenderSettings)
			}
		})
	}
}

// =========================================================================
// VERSIONING ON SAVE
// =========================================================================

func TestDiagramUpdate_VersionPerCodeChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.createDiagram(t, alice, "history", "graph TD; A")

	codes := []string{"graph TD; A-->B", "graph TD; A-->C", "graph TD; A-->D"}
	for i, code := range codes {
		got, err := env.diagrams.Update(ctx, alice, d.ID, DiagramInput{Code: ptr(code)})
		if err != nil {
			t.Fatalf("Update(%d) error = %v", i, err)
		}
		if got.Version != i+1 {
			t.Errorf("after change %d Version = %d, want %d", i+1, got.Version, i+1)
		}
	}

	versions, err := env.db.ListVersions(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(versions) != len(codes) {
		t.Fatalf("got %d versions, want %d", len(versions), len(codes))
	}
	// Newest first, numbered N..1, each holding the code it replaced.
	wantCode := []string{"graph TD; A-->C", "graph TD; A-->B", "graph TD; A"}
	for i, v := range versions {
		if v.VersionNumber != len(codes)-i {
			t.Errorf("versions[%d].VersionNumber = %d, want %d", i, v.VersionNumber, len(codes)-i)
		}
		if v.Code != wantCode[i] {
			t.Errorf("versions[%d].Code = %q, want %q", i, v.Code, wantCode[i])
		}
		if v.CreatedBy != "alice" {
			t.Errorf("versions[%d].CreatedBy = %q, want alice", i, v.CreatedBy)
		}
	}
}

func TestDiagramUpdate_NoCodeChangeNoVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.createDiagram(t, alice, "steady", "graph TD; A")

	got, err := env.diagrams.Update(ctx, alice, d.ID, DiagramInput{
		Title:  ptr("renamed"),
		Code:   ptr("graph TD; A"),
		Status: ptr(model.StatusPublished),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Version != 0 {
		t.Errorf("Version = %d, want 0", got.Version)
	}
	if got.Title != "renamed" || got.Status != model.StatusPublished {
		t.Errorf("fields not applied: %+v", got)
	}
	if n, _ := env.db.CountVersions(ctx, d.ID); n != 0 {
		t.Errorf("CountVersions() = %d, want 0", n)
	}
}

func TestDiagramUpdate_ChangeNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.createDiagram(t, alice, "notes", "pie")

	if _, err := env.diagrams.Update(ctx, alice, d.ID, DiagramInput{Code: ptr("pie title x"), ChangeNotes: " added title "}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	versions, _ := env.db.ListVersions(ctx, d.ID)
	if len(versions) != 1 || versions[0].ChangeNotes != "added title" {
		t.Errorf("versions = %+v, want one with notes", versions)
	}
}

func TestDiagramUpdate_ClearFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f, err := env.folders.Create(ctx, alice, FolderInput{Name: ptr("docs")})
	if err != nil {
		t.Fatalf("folder Create() error = %v", err)
	}
	d, err := env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("x"), FolderID: ptr(f.ID)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := env.diagrams.Update(ctx, alice, d.ID, DiagramInput{FolderID: ptr("")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.FolderID != nil {
		t.Errorf("FolderID = %v, want nil", *got.FolderID)
	}
}

// =========================================================================
// PERMISSION TESTS
// =========================================================================

func TestDiagramPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	private := env.createDiagram(t, alice, "private", "graph TD; A")
	public, _ := env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("public"), IsPublic: ptr(true)})
	env.share(t, alice, private, bob, model.PermissionRead)
	env.share(t, alice, private, carol, model.PermissionWrite)

	tests := []struct {
		name   string
		caller model.Caller
		id     string
		write  bool
		want   error // nil = allowed
	}{
		{"owner reads", alice, private.ID, false, nil},
		{"owner writes", alice, private.ID, true, nil},
		{"admin writes", root, private.ID, true, nil},
		{"read share reads", bob, private.ID, false, nil},
		{"read share cannot write", bob, private.ID, true, apperror.ErrForbidden},
		{"write share writes", carol, private.ID, true, nil},
		{"guest cannot read private", guest, private.ID, false, apperror.ErrUnauthorized},
		{"guest reads public", guest, public.ID, false, nil},
		{"stranger cannot write public", bob, public.ID, true, apperror.ErrForbidden},
		{"missing diagram", alice, "nope", false, apperror.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.write {
				_, err = env.diagrams.Update(ctx, tt.caller, tt.id, DiagramInput{Description: ptr(tt.name)})
			} else {
				_, err = env.diagrams.Get(ctx, tt.caller, tt.id)
			}
			if tt.want == nil {
				if err != nil {
					t.Fatalf("error = %v, want allowed", err)
				}
				return
			}
			assertKind(t, err, tt.want)
		})
	}
}

func TestDiagramDelete_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.createDiagram(t, alice, "doomed", "graph TD; A")
	env.share(t, alice, d, bob, model.PermissionAdmin)

	// An admin-level share can share and revoke, but not delete.
	assertKind(t, env.diagrams.Delete(ctx, bob, d.ID), apperror.ErrForbidden)
	assertKind(t, env.diagrams.Delete(ctx, guest, d.ID), apperror.ErrUnauthorized)

	if err := env.diagrams.Delete(ctx, alice, d.ID); err != nil {
		t.Fatalf("Delete() by owner error = %v", err)
	}
	_, err := env.diagrams.Get(ctx, alice, d.ID)
	assertKind(t, err, apperror.ErrNotFound)

	other := env.createDiagram(t, bob, "bob's", "pie")
	if err := env.diagrams.Delete(ctx, root, other.ID); err != nil {
		t.Fatalf("Delete() by admin error = %v", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestDiagramList_Visibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createDiagram(t, alice, "alice private", "pie")
	env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("alice public"), IsPublic: ptr(true)})
	shared := env.createDiagram(t, alice, "shared with bob", "pie")
	env.share(t, alice, shared, bob, model.PermissionRead)
	env.createDiagram(t, bob, "bob private", "pie")

	titles := func(caller model.Caller) map[string]bool {
		t.Helper()
		list, err := env.diagrams.List(ctx, caller, ListQuery{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		out := map[string]bool{}
		for _, d := range list {
			out[d.Title] = true
		}
		return out
	}

	if got := titles(guest); len(got) != 1 || !got["alice public"] {
		t.Errorf("guest sees %v, want only the public diagram", got)
	}
	if got := titles(bob); len(got) != 3 || !got["shared with bob"] || !got["bob private"] || got["alice private"] {
		t.Errorf("bob sees %v", got)
	}
	if got := titles(root); len(got) != 4 {
		t.Errorf("admin sees %d diagrams, want 4", len(got))
	}
}

func TestDiagramList_Filters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createDiagram(t, alice, "flow", "graph TD; A")
	env.createDiagram(t, alice, "pie chart", "pie")
	env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("tmpl"), Code: ptr("pie"), IsTemplate: ptr(true)})

	tests := []struct {
		name string
		q    ListQuery
		want int
	}{
		{"array filter", ListQuery{Filters: `[["diagram_type","=","pie"]]`}, 2},
		{"object filter", ListQuery{Filters: `[{"diagram_type":["!=","pie"]}]`}, 1},
		{"search", ListQuery{SearchText: "chart"}, 1},
		{"templates", ListQuery{IsTemplate: ptr(true)}, 1},
		{"limit", ListQuery{Limit: 2}, 2},
		{"offset past end", ListQuery{Offset: 10}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := env.diagrams.List(ctx, alice, tt.q)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("got %d diagrams, want %d", len(list), tt.want)
			}
		})
	}

	_, err := env.diagrams.List(ctx, alice, ListQuery{Filters: `[["secret","=","x"]]`})
	assertKind(t, err, apperror.ErrValidation)
}

// =========================================================================
// PREVIEW / TAGS
// =========================================================================

func TestDiagramPreview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.createDiagram(t, alice, "preview", "graph TD; A-->B")

	res, err := env.diagrams.Preview(ctx, alice, d.ID)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if !res.Success || res.Code != d.Code || res.Type != model.TypeFlowchart {
		t.Errorf("Preview() = %+v", res)
	}
	if res.Message != "Preview generated successfully" {
		t.Errorf("Message = %q", res.Message)
	}

	_, err = env.diagrams.Preview(ctx, bob, d.ID)
	assertKind(t, err, apperror.ErrForbidden)
}

func TestPopularTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("a"), Tags: ptr([]string{"infra", "api"})})
	env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("b"), Tags: ptr([]string{"API"})})

	tags, err := env.diagrams.PopularTags(ctx, 0)
	if err != nil {
		t.Fatalf("PopularTags() error = %v", err)
	}
	if len(tags) != 2 || tags[0].Tag != "api" || tags[0].Count != 2 {
		t.Errorf("PopularTags() = %+v, want api first with 2", tags)
	}
}
