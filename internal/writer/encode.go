package writer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// CodecName returns the canonical spelling of a configured codec name.
// Matching is case-insensitive, "" means snappy and "uncompressed" means none.
func CodecName(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "":
		return "snappy"
	case "uncompressed":
		return "none"
	default:
		return n
	}
}

// Codec returns the parquet compression codec for a configured name.
func Codec(name string) (compress.Codec, error) {
	switch CodecName(name) {
	case "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unknown compression codec: %s", name)
	}
}

// Encode writes rows as a single parquet file. The schema is derived from
// T's parquet struct tags.
func Encode[T any](rows []T, codec compress.Codec) ([]byte, error) {
	var buf bytes.Buffer

	w := parquet.NewGenericWriter[T](&buf, parquet.Compression(codec))
	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			return nil, fmt.Errorf("write rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode reads every row of a parquet file. Columns tagged `parquet:"-"`
// are left at their zero value.
func Decode[T any](data []byte) ([]T, error) {
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows, nil
}
