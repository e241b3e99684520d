package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore writes objects to the local filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new local filesystem store rooted at
// baseDir/prefix.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	root := filepath.Join(baseDir, filepath.FromSlash(prefix))

	// Ensure base directory exists
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", root, err)
	}

	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes data atomically using a temp file and rename.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	path := s.path(key)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		// Clean up temp file on rename failure
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}

	return nil
}

// Get reads the whole file.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.URI(key))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Head returns metadata about a stored file.
func (s *LocalStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.URI(key))
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	return &ObjectInfo{
		Key:     key,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Exists checks if a file exists.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// List returns all keys with the given prefix. Directories are walked from
// the deepest directory the prefix names.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	walkRoot := s.root
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		walkRoot = s.path(prefix[:i])
	}

	var keys []string
	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == walkRoot {
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
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Move renames src to dst, creating dst's directory.
func (s *LocalStore) Move(ctx context.Context, src, dst string) error {
	dstPath := s.path(dst)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", dst, err)
	}
	if err := os.Rename(s.path(src), dstPath); err != nil {
		return fmt.Errorf("rename %s to %s: %w", src, dst, err)
	}
	return nil
}

// Delete removes a single file and any directories it leaves empty.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path := s.path(key)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}

	// os.Remove refuses non-empty directories, which stops the walk.
	for dir := filepath.Dir(path); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// DeletePrefix removes every file under prefix. A prefix ending in "/" also
// removes the directory itself.
func (s *LocalStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	if strings.HasSuffix(prefix, "/") {
		if err := os.RemoveAll(s.path(prefix)); err != nil {
			return 0, fmt.Errorf("remove %s: %w", prefix, err)
		}
		return len(keys), nil
	}

	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	absPath, err := filepath.Abs(s.path(key))
	if err != nil {
		absPath = s.path(key)
	}
	return "file://" + filepath.ToSlash(absPath)
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}

var _ Store = (*LocalStore)(nil)
