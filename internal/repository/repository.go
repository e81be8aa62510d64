// Package repository declares the persistence interfaces the services depend
// on. The sqlite subpackage implements all of them on one *sqlite.DB.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/roaa-mamdouh/mermaid-studio/internal/filter"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// DiagramFilter narrows List. Zero values mean "don't filter".
//
// Owner and IncludePublic together express visibility: when Owner is set the
// result holds the owner's diagrams, plus public ones if IncludePublic, plus
// any diagram shared with SharedWith (an email) by an unexpired share.
type DiagramFilter struct {
	FolderID      string
	IsTemplate    *bool
	Owner         string
	SharedWith    string
	IncludePublic bool
	SearchText    string
	Conditions    []filter.Condition
	ListOptions
}

type DiagramRepository interface {
	Create(ctx context.Context, d *model.Diagram) error
	GetByID(ctx context.Context, id string) (*model.Diagram, error)
	List(ctx context.Context, f DiagramFilter) ([]model.Diagram, error)
	Update(ctx context.Context, d *model.Diagram) error
	Delete(ctx context.Context, id string) error
	// MoveFolder reassigns every diagram in from to to (nil = no folder).
	MoveFolder(ctx context.Context, from string, to *string) (int64, error)
	ReplaceTags(ctx context.Context, diagramID string, tags []string) error
	PopularTags(ctx context.Context, limit int) ([]model.TagCount, error)
}

// FolderFilter selects the folders directly under ParentID ("" = top
// level). All lists every folder; otherwise the result holds Owner's folders
// and public ones, and an empty Owner lists only public folders.
type FolderFilter struct {
	ParentID string
	Owner    string
	All      bool
}

type FolderRepository interface {
	CreateFolder(ctx context.Context, f *model.Folder) error
	GetFolder(ctx context.Context, id string) (*model.Folder, error)
	ListFolders(ctx context.Context, f FolderFilter) ([]model.Folder, error)
	UpdateFolder(ctx context.Context, f *model.Folder) error
	DeleteFolder(ctx context.Context, id string) error
}

type VersionRepository interface {
	CreateVersion(ctx context.Context, v *model.Version) error
	GetVersion(ctx context.Context, id string) (*model.Version, error)
	ListVersions(ctx context.Context, diagramID string) ([]model.Version, error)
	// PreviousVersion returns the version of diagramID with the highest
	// number strictly below number.
	PreviousVersion(ctx context.Context, diagramID string, number int) (*model.Version, error)
	CountVersions(ctx context.Context, diagramID string) (int, error)
}

type ShareRepository interface {
	CreateShare(ctx context.Context, s *model.Share) error
	GetShare(ctx context.Context, id string) (*model.Share, error)
	GetShareByToken(ctx context.Context, token string) (*model.Share, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	// FindShareFor returns the shares of diagramID addressed to email.
	FindShareFor(ctx context.Context, diagramID, email string) ([]model.Share, error)
	ListShares(ctx context.Context, diagramID string) ([]model.Share, error)
	DeleteShare(ctx context.Context, id string) error
	DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error)
}

type CommentRepository interface {
	CreateComment(ctx context.Context, c *model.Comment) error
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	ListComments(ctx context.Context, diagramID string) ([]model.Comment, error)
	DeleteComment(ctx context.Context, id string) error
}

// FileRepository keeps the ownership records of stored files, keyed by
// their "/files/..." URL.
type FileRepository interface {
	CreateFile(ctx context.Context, f *model.StoredFile) error
	GetFile(ctx context.Context, url string) (*model.StoredFile, error)
}

type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	SetRole(ctx context.Context, id, role string) error
}

// ErrDuplicateToken is returned by CreateShare when the token collides with
// an existing share.
var ErrDuplicateToken = errors.New("repository: duplicate share token")
