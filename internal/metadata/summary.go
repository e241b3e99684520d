package metadata

import (
	"encoding/json"
	"time"
)

// RunSummary is the catalog-independent record of a run, stored next to the
// tables as _runs/<run_id>.json.
type RunSummary struct {
	RunID      string                  `json:"run_id"`
	InputURI   string                  `json:"input_uri"`
	OutputURI  string                  `json:"output_uri"`
	Producer   string                  `json:"producer"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Input      map[string]InputSummary `json:"input"`
	Tables     map[string]TableRecord  `json:"tables"`
	Quality    []QualityRecord         `json:"quality,omitempty"`
	Unmatched  int                     `json:"unmatched_songplays"`
}

// InputSummary counts what was read for one input dataset.
type InputSummary struct {
	Files   int `json:"files"`
	Records int `json:"records"`
}

// NewRunSummary starts a summary for runID.
func NewRunSummary(runID, inputURI, outputURI, producer string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		InputURI:  inputURI,
		OutputURI: outputURI,
		Producer:  producer,
		StartedAt: startedAt.UTC(),
		Input:     make(map[string]InputSummary),
		Tables:    make(map[string]TableRecord),
	}
}

// Key returns the storage key the summary is written to.
func (s *RunSummary) Key() string {
	return "_runs/" + s.RunID + ".json"
}

// Marshal returns the summary as indented JSON.
func (s *RunSummary) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
