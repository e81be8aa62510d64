// Package storage keeps exported and uploaded files.
//
// Every backend hands out URLs of the form "/files/<key>", where key is
// "<uuid>/<file name>". The server serves that prefix by reading back through
// the same store, so callers never care which backend holds the bytes. The
// store itself does no access control; the file records kept next to the
// diagrams decide who may read a key.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
)

// URLPrefix is the path every stored file is served under.
const URLPrefix = "/files/"

// File describes a stored object.
type File struct {
	Name        string `json:"file_name"`
	URL         string `json:"file_url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// FileStore saves files and opens them again by URL.
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (*File, error)
	Open(ctx context.Context, fileURL string) (io.ReadCloser, error)
}

// newKey builds a unique object key that keeps the original file name as its
// last path element. The prefix is a random UUID so keys can't be guessed
// from one another.
func newKey(name string) string {
	return uuid.NewString() + "/" + SanitizeName(name)
}

// SanitizeName keeps the base name and replaces characters that are awkward
// in URLs and object keys with underscores.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// KeyFromURL extracts the object key from a "/files/..." URL (absolute URLs
// are accepted as long as their path has the prefix).
func KeyFromURL(fileURL string) (string, error) {
	i := strings.Index(fileURL, URLPrefix)
	if i < 0 {
		return "", apperror.ValidationFailed("file_url", "file_url must point at a stored file")
	}
	raw := fileURL[i+len(URLPrefix):]
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", apperror.ValidationFailed("file_url", "invalid file path")
		}
	}
	key := strings.Trim(path.Clean("/"+raw), "/")
	if key == "" {
		return "", apperror.ValidationFailed("file_url", "invalid file path")
	}
	return key, nil
}

// CanonicalURL returns the "/files/<key>" form of fileURL.
func CanonicalURL(fileURL string) (string, error) {
	key, err := KeyFromURL(fileURL)
	if err != nil {
		return "", err
	}
	return URLPrefix + key, nil
}

// BaseName returns the file name part of a stored file's URL.
func BaseName(fileURL string) string {
	return path.Base(fileURL)
}
