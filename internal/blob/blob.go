package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/xid"
	"github.com/spf13/afero"
)

const maxExtLen = 16

// ErrInvalidName is returned for names that would escape the storage directory.
var ErrInvalidName = errors.New("invalid blob name")

// Store writes attachment bytes into a single directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// New creates a store rooted at dir on fs.
func New(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// NewOS creates a store on the local filesystem.
func NewOS(dir string) *Store {
	return New(afero.NewOsFs(), dir)
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Write stores data under name, creating the directory on demand.
func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	return nil
}

// Open opens a stored blob for reading.
func (s *Store) Open(name string) (afero.File, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", name, err)
	}
	return f, nil
}

// HTTPFileSystem exposes the storage directory for static serving.
func (s *Store) HTTPFileSystem() http.FileSystem {
	return afero.NewHttpFs(s.fs).Dir(s.dir)
}

// NewName derives a collision-resistant filename that keeps the extension of
// original. The id part is an xid, which sorts by creation time.
func NewName(original string) string {
	name := xid.New().String()
	if ext := sanitizeExt(filepath.Ext(original)); ext != "" {
		name += "." + ext
	}
	return name
}

func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == maxExtLen {
			break
		}
	}
	return b.String()
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsRune(name, '/') || strings.ContainsRune(name, os.PathSeparator) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
