package writer

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/storage"
)

// ErrCorrupt is returned when stored files disagree with their manifest.
var ErrCorrupt = errors.New("table does not match manifest")

// ReadManifest loads the manifest of a committed table.
func ReadManifest(ctx context.Context, store storage.Store, table string) (*storage.Manifest, error) {
	dir := table + ".parquet"

	ok, err := store.Exists(ctx, path.Join(dir, SuccessFile))
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", SuccessFile, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s marker", storage.ErrNotFound, store.URI(dir), SuccessFile)
	}

	data, err := store.Get(ctx, path.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	return storage.ParseManifest(data)
}

// ReadTable decodes every file listed in the table manifest, in manifest
// order, after checking each file's checksum.
func ReadTable[T any](ctx context.Context, store storage.Store, table string) ([]T, *storage.Manifest, error) {
	m, err := ReadManifest(ctx, store, table)
	if err != nil {
		return nil, nil, err
	}

	var rows []T
	for _, f := range m.Files {
		data, err := store.Get(ctx, path.Join(table+".parquet", f.Path))
		if err != nil {
			return nil, nil, err
		}
		if !storage.VerifyChecksum(data, f.Checksum) {
			return nil, nil, fmt.Errorf("%w: %s/%s checksum mismatch", ErrCorrupt, table, f.Path)
		}
		part, err := Decode[T](data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s/%s: %w", table, f.Path, err)
		}
		if int64(len(part)) != f.RowCount {
			return nil, nil, fmt.Errorf("%w: %s/%s has %d rows, manifest says %d", ErrCorrupt, table, f.Path, len(part), f.RowCount)
		}
		rows = append(rows, part...)
	}
	return rows, m, nil
}

// Verify checks that every file in the manifest exists with the recorded
// size and checksum, and that no unlisted parquet file sits in the table
// directory.
func Verify(ctx context.Context, store storage.Store, table string) (*storage.Manifest, error) {
	m, err := ReadManifest(ctx, store, table)
	if err != nil {
		return nil, err
	}
	dir := table + ".parquet"

	listed := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		key := path.Join(dir, f.Path)
		listed[key] = true

		data, err := store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) != f.ByteSize || !storage.VerifyChecksum(data, f.Checksum) {
			return nil, fmt.Errorf("%w: %s", ErrCorrupt, store.URI(key))
		}
	}

	keys, err := store.List(ctx, dir+"/")
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if path.Ext(key) == ".parquet" && !listed[key] {
			return nil, fmt.Errorf("%w: unlisted file %s", ErrCorrupt, store.URI(key))
		}
	}
	return m, nil
}
