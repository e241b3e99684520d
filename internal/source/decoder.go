package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Decompress wraps r according to the key's extension. Uncompressed input
// is returned as is.
func Decompress(r io.Reader, key string) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(key, ".gz"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return zr, nil
	case strings.HasSuffix(key, ".zst"):
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

// DecodeJSONLines decodes a stream of JSON objects, one record per line, into
// T. A file holding a single object yields one record. Blank lines are
// ignored.
func DecodeJSONLines[T any](r io.Reader, key string) ([]T, error) {
	dr, err := Decompress(r, key)
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	dec := json.NewDecoder(dr)

	var out []T
	for {
		var rec T
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s record %d (offset %d): %v",
				ErrParse, key, len(out)+1, dec.InputOffset(), err)
		}
		out = append(out, rec)
	}
}
