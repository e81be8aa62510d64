package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/roaa-mamdouh/mermaid-studio/internal/collab"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/notify"
	"github.com/roaa-mamdouh/mermaid-studio/internal/render"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository/sqlite"
	"github.com/roaa-mamdouh/mermaid-studio/internal/storage"
)

// =========================================================================
// CALLERS
// =========================================================================

var (
	alice = model.Caller{UserID: "alice", Email: "alice@example.com", Name: "Alice"}
	bob   = model.Caller{UserID: "bob", Email: "bob@example.com", Name: "Bob"}
	carol = model.Caller{UserID: "carol", Email: "carol@example.com", Name: "Carol"}
	root  = model.Caller{UserID: "root", Email: "root@example.com", Name: "Root", Admin: true}
	guest = model.Caller{}
)

// =========================================================================
// FAKES
// =========================================================================

// fakeNotifier records events and can be told to fail.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.ShareEvent
	err    error
}

func (f *fakeNotifier) NotifyShare(_ context.Context, event *notify.ShareEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *event)
	return f.err
}

// fakeRenderer returns canned bytes, or err.
type fakeRenderer struct {
	data []byte
	err  error
	got  render.Request
}

func (f *fakeRenderer) Render(_ context.Context, req render.Request) (*render.Result, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &render.Result{Format: req.Format, Data: f.data, Duration: time.Millisecond}, nil
}

// brokenStore is a collab.Store whose backend is down.
type brokenStore struct{ collab.Store }

func (brokenStore) Cursors(context.Context, string) (map[string]model.CursorPosition, error) {
	return nil, collab.ErrUnavailable
}

// failingFiles is a storage.FileStore that can't open anything.
type failingFiles struct{ storage.FileStore }

func (failingFiles) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("disk on fire")
}

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================

// testEnv wires every service to one in-memory database.
type testEnv struct {
	db       *sqlite.DB
	authz    *Authorizer
	diagrams *DiagramService
	versions *VersionService
	shares   *ShareService
	folders  *FolderService
	comments *CommentService
	collab   *CollabService
	exports  *ExportService
	notifier *fakeNotifier
	renderer *fakeRenderer
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	logger := newTestLogger()
	env := &testEnv{
		db:       db,
		notifier: &fakeNotifier{},
		renderer: &fakeRenderer{data: []byte("<svg/>")},
	}
	env.authz = NewAuthorizer(db)
	env.diagrams = NewDiagramService(db, db, db, env.authz, logger)
	env.versions = NewVersionService(db, env.diagrams, logger)
	env.shares = NewShareService(db, db, env.authz, env.notifier, logger)
	env.folders = NewFolderService(db, db, env.diagrams, logger)
	env.comments = NewCommentService(db, env.diagrams, logger)
	env.collab = NewCollabService(collab.NewMemoryStore(), env.diagrams, logger)
	env.exports = NewExportService(env.diagrams, db, files, env.renderer, logger)
	return env
}

// setClock pins every clock-aware service to *now.
func (e *testEnv) setClock(now *time.Time) {
	c := func() time.Time { return *now }
	e.authz.now = c
	e.diagrams.now = c
	e.shares.now = c
	e.collab.now = c
}

func ptr[T any](v T) *T { return &v }

// createDiagram creates a diagram for caller and fails the test on error.
func (e *testEnv) createDiagram(t *testing.T, caller model.Caller, title, code string) *model.Diagram {
	t.Helper()
	d, err := e.diagrams.Create(context.Background(), caller, DiagramInput{
		Title: ptr(title),
		Code:  ptr(code),
	})
	if err != nil {
		t.Fatalf("Create(%q) error = %v", title, err)
	}
	return d
}

// share grants level on d to who, as d's owner.
func (e *testEnv) share(t *testing.T, owner model.Caller, d *model.Diagram, who model.Caller, level model.PermissionLevel) *model.Share {
	t.Helper()
	s, err := e.shares.Share(context.Background(), owner, d.ID, ShareInput{Email: who.Email, PermissionLevel: level})
	if err != nil {
		t.Fatalf("Share() error = %v", err)
	}
	return s
}

// assertKind fails unless err wraps target.
func assertKind(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}
