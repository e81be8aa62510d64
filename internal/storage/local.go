package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
)

// Local stores files under a directory on disk.
type Local struct {
	dir string
}

var _ FileStore = (*Local)(nil)

// NewLocal creates dir if needed and returns a store rooted there.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Save(_ context.Context, name string, r io.Reader, _ int64, contentType string) (*File, error) {
	key := newKey(name)
	full := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating directory for %s: %w", key, err)
	}

	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", key, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("storage: writing %s: %w", key, err)
	}

	return &File{
		Name:        filepath.Base(full),
		URL:         URLPrefix + key,
		ContentType: contentType,
		Size:        n,
	}, nil
}

func (l *Local) Open(_ context.Context, fileURL string) (io.ReadCloser, error) {
	key, err := KeyFromURL(fileURL)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(l.dir, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.Missing("file not found")
		}
		return nil, fmt.Errorf("storage: opening %s: %w", key, err)
	}
	return f, nil
}
