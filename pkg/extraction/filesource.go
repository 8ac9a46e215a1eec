package extraction

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSource opens stored contract files.
type FileSource interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// LocalFileSource serves files below a root directory. Paths that escape
// the root are rejected.
type LocalFileSource struct {
	root string
}

// NewLocalFileSource creates a FileSource rooted at dir.
func NewLocalFileSource(dir string) *LocalFileSource {
	return &LocalFileSource{root: dir}
}

var _ FileSource = (*LocalFileSource)(nil)

func (s *LocalFileSource) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := s.relative(path)
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage root: %w", err)
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

func (s *LocalFileSource) relative(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty file path")
	}
	if !filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}

	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage root: %w", err)
	}
	rel, err := filepath.Rel(absRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the storage root", path)
	}
	return rel, nil
}
