package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalSource reads input files from the local filesystem.
type LocalSource struct {
	basePath string
}

// NewLocalSource creates a new local filesystem source.
func NewLocalSource(basePath string) (*LocalSource, error) {
	// Verify path exists
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid local path %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local path %s is not a directory", basePath)
	}

	return &LocalSource{basePath: basePath}, nil
}

// Glob implements RecordSource.Glob by walking the literal prefix of the
// pattern.
func (s *LocalSource) Glob(ctx context.Context, pattern string) ([]string, error) {
	index := NewFileIndex(pattern)
	root := filepath.Join(s.basePath, filepath.FromSlash(index.ListPrefix()))

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return fs.SkipAll
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		index.AddKey(filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", root, err)
	}

	return index.Keys(), nil
}

// Open implements RecordSource.Open.
func (s *LocalSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.basePath, filepath.FromSlash(key)))
}

// URI returns the canonical URI for the given key.
func (s *LocalSource) URI(key string) string {
	abs, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if err != nil {
		abs = filepath.Join(s.basePath, key)
	}
	return "file://" + filepath.ToSlash(abs)
}

// Close is a no-op for local sources.
func (s *LocalSource) Close() error {
	return nil
}

var _ RecordSource = (*LocalSource)(nil)
