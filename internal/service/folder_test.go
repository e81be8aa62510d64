package service

import (
	"context"
	"testing"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

func (e *testEnv) createFolder(t *testing.T, caller model.Caller, name, parent string) *model.Folder {
	t.Helper()
	in := FolderInput{Name: ptr(name)}
	if parent != "" {
		in.ParentID = ptr(parent)
	}
	f, err := e.folders.Create(context.Background(), caller, in)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", name, err)
	}
	return f
}

// =========================================================================
// TREE TESTS
// =========================================================================

func TestFolderCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.createFolder(t, alice, "  Architecture ", "")
	if root.Name != "Architecture" || root.Owner != "alice" || root.ParentID != nil {
		t.Errorf("Create() = %+v", root)
	}
	child := env.createFolder(t, alice, "Services", root.ID)
	if child.ParentID == nil || *child.ParentID != root.ID {
		t.Errorf("child ParentID = %v, want %s", child.ParentID, root.ID)
	}

	_, err := env.folders.Create(ctx, alice, FolderInput{Name: ptr(" ")})
	assertKind(t, err, apperror.ErrValidation)
	_, err = env.folders.Create(ctx, alice, FolderInput{Name: ptr("x"), ParentID: ptr("nope")})
	assertKind(t, err, apperror.ErrNotFound)
	_, err = env.folders.Create(ctx, guest, FolderInput{Name: ptr("x")})
	assertKind(t, err, apperror.ErrUnauthorized)
}

func TestFolderUpdate_RejectsCycles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createFolder(t, alice, "A", "")
	b := env.createFolder(t, alice, "B", a.ID)
	c := env.createFolder(t, alice, "C", b.ID)

	tests := []struct {
		name   string
		id     string
		parent string
	}{
		{"own parent", a.ID, a.ID},
		{"grandchild as parent", a.ID, c.ID},
		{"child as parent", b.ID, c.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.folders.Update(ctx, alice, tt.id, FolderInput{ParentID: ptr(tt.parent)})
			assertKind(t, err, apperror.ErrValidation)
		})
	}

	// Moving C to the top and then under A is fine.
	if _, err := env.folders.Update(ctx, alice, c.ID, FolderInput{ParentID: ptr("")}); err != nil {
		t.Fatalf("Update() to top level error = %v", err)
	}
	if _, err := env.folders.Update(ctx, alice, c.ID, FolderInput{ParentID: ptr(a.ID)}); err != nil {
		t.Fatalf("Update() under A error = %v", err)
	}
}

func TestValidateParent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createFolder(t, alice, "A", "")
	b := env.createFolder(t, alice, "B", a.ID)

	tests := []struct {
		name     string
		folderID string
		parentID string
		want     error
	}{
		{"no parent", a.ID, "", nil},
		{"new folder", "", b.ID, nil},
		{"sibling branch", b.ID, a.ID, nil},
		{"self", a.ID, a.ID, apperror.ErrValidation},
		{"descendant", a.ID, b.ID, apperror.ErrValidation},
		{"missing ancestor", a.ID, "ghost", apperror.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.folders.ValidateParent(ctx, tt.folderID, tt.parentID)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("ValidateParent() error = %v", err)
				}
				return
			}
			assertKind(t, err, tt.want)
		})
	}
}

// =========================================================================
// ACCESS TESTS
// =========================================================================

func TestFolderAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	private := env.createFolder(t, alice, "private", "")
	public, _ := env.folders.Create(ctx, alice, FolderInput{Name: ptr("public"), IsPublic: ptr(true)})

	_, err := env.folders.Get(ctx, bob, private.ID)
	assertKind(t, err, apperror.ErrForbidden)
	_, err = env.folders.Get(ctx, guest, private.ID)
	assertKind(t, err, apperror.ErrUnauthorized)

	if _, err := env.folders.Get(ctx, guest, public.ID); err != nil {
		t.Errorf("guest Get(public) error = %v", err)
	}
	if _, err := env.folders.Get(ctx, root, private.ID); err != nil {
		t.Errorf("admin Get(private) error = %v", err)
	}

	_, err = env.folders.Update(ctx, bob, public.ID, FolderInput{Name: ptr("mine now")})
	assertKind(t, err, apperror.ErrForbidden)
	assertKind(t, env.folders.Delete(ctx, bob, public.ID), apperror.ErrForbidden)

	list, err := env.folders.List(ctx, bob, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != public.ID {
		t.Errorf("bob lists %+v, want only the public folder", list)
	}

	all, err := env.folders.List(ctx, root, "")
	if err != nil {
		t.Fatalf("admin List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("admin lists %d folders, want both", len(all))
	}
}

func TestFolderPlacement_RequiresAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	private := env.createFolder(t, alice, "private", "")
	public, err := env.folders.Create(ctx, alice, FolderInput{Name: ptr("public"), IsPublic: ptr(true)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Diagrams can't be filed into a folder the caller can't read.
	_, err = env.diagrams.Create(ctx, bob, DiagramInput{Title: ptr("sneaky"), FolderID: ptr(private.ID)})
	assertKind(t, err, apperror.ErrForbidden)
	own := env.createDiagram(t, bob, "mine", "pie")
	_, err = env.diagrams.Update(ctx, bob, own.ID, DiagramInput{FolderID: ptr(private.ID)})
	assertKind(t, err, apperror.ErrForbidden)
	if _, err := env.diagrams.Create(ctx, bob, DiagramInput{Title: ptr("shared"), FolderID: ptr(public.ID)}); err != nil {
		t.Errorf("Create() in a public folder error = %v", err)
	}

	// Nor can folders be nested under one.
	_, err = env.folders.Create(ctx, bob, FolderInput{Name: ptr("sub"), ParentID: ptr(private.ID)})
	assertKind(t, err, apperror.ErrForbidden)
	bobs := env.createFolder(t, bob, "bob's", "")
	_, err = env.folders.Update(ctx, bob, bobs.ID, FolderInput{ParentID: ptr(private.ID)})
	assertKind(t, err, apperror.ErrForbidden)

	// A shared editor may still change a diagram that already sits in the
	// owner's private folder.
	inside, err := env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("inside"), Code: ptr("pie"), FolderID: ptr(private.ID)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	env.share(t, alice, inside, bob, model.PermissionWrite)
	if _, err := env.diagrams.Update(ctx, bob, inside.ID, DiagramInput{Code: ptr("pie title edited")}); err != nil {
		t.Errorf("editor Update() error = %v", err)
	}

	if _, err := env.diagrams.Create(ctx, root, DiagramInput{Title: ptr("admin"), FolderID: ptr(private.ID)}); err != nil {
		t.Errorf("admin Create() error = %v", err)
	}
}

func TestFolderSubfoldersAndDiagrams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	parent := env.createFolder(t, alice, "parent", "")
	env.createFolder(t, alice, "b-child", parent.ID)
	env.createFolder(t, alice, "a-child", parent.ID)
	env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("inside"), FolderID: ptr(parent.ID)})
	env.createDiagram(t, alice, "outside", "pie")

	subs, err := env.folders.Subfolders(ctx, alice, parent.ID)
	if err != nil {
		t.Fatalf("Subfolders() error = %v", err)
	}
	if len(subs) != 2 || subs[0].Name != "a-child" {
		t.Errorf("Subfolders() = %+v, want two sorted by name", subs)
	}

	diagrams, err := env.folders.Diagrams(ctx, alice, parent.ID, 0, 0)
	if err != nil {
		t.Fatalf("Diagrams() error = %v", err)
	}
	if len(diagrams) != 1 || diagrams[0].Title != "inside" {
		t.Errorf("Diagrams() = %+v", diagrams)
	}
}

// =========================================================================
// MOVE / DELETE TESTS
// =========================================================================

func TestFolderMoveDiagrams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	from := env.createFolder(t, alice, "from", "")
	to := env.createFolder(t, alice, "to", "")
	bobs := env.createFolder(t, bob, "bob's", "")
	for _, title := range []string{"one", "two"} {
		env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr(title), FolderID: ptr(from.ID)})
	}

	_, err := env.folders.MoveDiagrams(ctx, alice, from.ID, from.ID)
	assertKind(t, err, apperror.ErrValidation)
	_, err = env.folders.MoveDiagrams(ctx, alice, from.ID, bobs.ID)
	assertKind(t, err, apperror.ErrForbidden)

	n, err := env.folders.MoveDiagrams(ctx, alice, from.ID, to.ID)
	if err != nil {
		t.Fatalf("MoveDiagrams() error = %v", err)
	}
	if n != 2 {
		t.Errorf("moved %d, want 2", n)
	}
	moved, _ := env.folders.Diagrams(ctx, alice, to.ID, 0, 0)
	if len(moved) != 2 {
		t.Errorf("target holds %d diagrams, want 2", len(moved))
	}

	n, err = env.folders.MoveDiagrams(ctx, alice, to.ID, "")
	if err != nil || n != 2 {
		t.Fatalf("MoveDiagrams() to no folder = %d, %v", n, err)
	}
}

func TestFolderDelete_KeepsDiagrams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.createFolder(t, alice, "temp", "")
	child := env.createFolder(t, alice, "child", f.ID)
	d, _ := env.diagrams.Create(ctx, alice, DiagramInput{Title: ptr("kept"), FolderID: ptr(f.ID)})

	if err := env.folders.Delete(ctx, alice, f.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, err := env.diagrams.Get(ctx, alice, d.ID)
	if err != nil {
		t.Fatalf("diagram lost with its folder: %v", err)
	}
	if got.FolderID != nil {
		t.Errorf("FolderID = %v, want nil", *got.FolderID)
	}
	orphan, err := env.folders.Get(ctx, alice, child.ID)
	if err != nil {
		t.Fatalf("subfolder lost with its parent: %v", err)
	}
	if orphan.ParentID != nil {
		t.Errorf("ParentID = %v, want top level", *orphan.ParentID)
	}
}
