// Package audit publishes a tamper-evident record of every committed run.
// Each event lists the checksums of the tables a run wrote and carries the
// hash of the previous event for the same output root, so the events of one
// lake form a hash chain.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

const (
	EventVersion = "1.0"
	EventType    = "songplay_run"
)

// Event is one audit record.
type Event struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Run      RunInfo              `json:"run"`
	Tables   map[string]TableInfo `json:"tables"`
	Producer ProducerInfo         `json:"producer"`
	Chain    ChainInfo            `json:"chain"`
}

// RunInfo identifies the run being audited.
type RunInfo struct {
	RunID     string `json:"run_id"`
	InputURI  string `json:"input_uri"`
	OutputURI string `json:"output_uri"`
}

// TableInfo describes one committed table.
type TableInfo struct {
	Checksum   string `json:"checksum"`
	RowCount   int64  `json:"row_count"`
	ByteSize   int64  `json:"byte_size"`
	FileCount  int    `json:"file_count"`
	StorageURI string `json:"storage_uri"`
}

// ProducerInfo identifies the software that produced the tables.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha"`
}

// ChainInfo links an event to its predecessor.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// ChainKey returns the chain the run belongs to: one chain per output root.
func (r RunInfo) ChainKey() string {
	return r.OutputURI
}

// SetChainHashes links the event to prevHash and computes its own hash.
func (e *Event) SetChainHashes(prevHash string) {
	e.Chain.PrevEventHash = prevHash
	e.Chain.EventHash = ComputeEventHash(e)
}

// ComputeEventHash hashes the JSON form of the event with the event_hash
// field cleared. Map keys marshal in sorted order, so the table order does
// not affect the hash.
func ComputeEventHash(e *Event) string {
	cp := *e
	cp.Chain.EventHash = ""

	canonical, err := json.Marshal(cp)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:])
}
