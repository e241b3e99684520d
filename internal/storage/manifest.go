package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Manifest describes the files that make up one written table. It is stored
// as <table>.parquet/_manifest.json.
type Manifest struct {
	Table         string       `json:"table"`
	PartitionBy   []string     `json:"partition_by,omitempty"`
	Files         []FileInfo   `json:"files"`
	RowCount      int64        `json:"row_count"`
	ByteSize      int64        `json:"byte_size"`
	Checksum      string       `json:"checksum"`
	Compression   string       `json:"compression"`
	SchemaVersion string       `json:"schema_version"`
	RunID         string       `json:"run_id"`
	Producer      ProducerInfo `json:"producer"`
	CreatedAt     time.Time    `json:"created_at"`
}

// FileInfo describes a single parquet file of a table.
type FileInfo struct {
	Path      string            `json:"path"` // relative to the table directory
	Partition map[string]string `json:"partition,omitempty"`
	Checksum  string            `json:"checksum"`
	RowCount  int64             `json:"row_count"`
	ByteSize  int64             `json:"byte_size"`
}

// ProducerInfo describes the software that produced the table.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the manifest as JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// ParseManifest decodes a manifest written by MarshalJSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
