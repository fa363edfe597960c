package model

import (
	"fmt"
)

// ImportRequest is the caller-confirmed configuration for one CSV
// import run. Mapping maps CSV headers to canonical fields and must
// cover account_number.
type ImportRequest struct {
	InstanceID    int64             `json:"instance_id"`
	Source        string            `json:"source"`
	Mapping       map[string]string `json:"mapping"`
	MatchHandoffs bool              `json:"match_handoffs"`
	DryRun        bool              `json:"dry_run"`
}

func (r *ImportRequest) Validate() error {
	if r.InstanceID == 0 {
		return fmt.Errorf("invalid instance id")
	}
	mapped := false
	for _, field := range r.Mapping {
		if field == FieldAccountNumber {
			mapped = true
			break
		}
	}
	if !mapped {
		return fmt.Errorf("required field %s is not mapped", FieldAccountNumber)
	}
	return nil
}

// ImportResult is the presentation contract of an import run. Success
// is false only on structural failures; per-row failures collect into
// Errors with the batch continuing.
type ImportResult struct {
	Success  bool     `json:"success"`
	Imported int      `json:"imported"`
	Matched  int      `json:"matched"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// ImportPreview is the read-only first look at an uploaded feed.
type ImportPreview struct {
	Headers          []string          `json:"headers"`
	SampleRows       [][]string        `json:"sample_rows"`
	TotalRows        int               `json:"total_rows"`
	SuggestedMapping map[string]string `json:"suggested_mapping"`
}
