package model

import "time"

// DiffStatus classifies a single field comparison.
type DiffStatus string

const (
	DiffMatch         DiffStatus = "MATCH"
	DiffMismatch      DiffStatus = "MISMATCH"
	DiffMissingSource DiffStatus = "MISSING_SOURCE"
	DiffMissingTarget DiffStatus = "MISSING_TARGET"
)

// FieldDiff is the per-field output of reconciliation. TargetName records
// which fetch target supplied the compared value, so the audit trail stays
// attributable under per-field best-of-N selection.
type FieldDiff struct {
	Field      string     `json:"field"`
	Status     DiffStatus `json:"status"`
	Score      float64    `json:"match_score"`
	Source     *Value     `json:"source_value,omitempty"`
	Target     *Value     `json:"target_value,omitempty"`
	TargetName string     `json:"target_name,omitempty"`
}

// ReconciliationResult is an immutable scored diff. Re-running
// reconciliation produces a new result; earlier ones stay in history.
type ReconciliationResult struct {
	Strategy     string      `json:"strategy"`
	Diffs        []FieldDiff `json:"diffs"`
	OverallScore float64     `json:"overall_score"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Matches counts the diffs classified MATCH.
func (r *ReconciliationResult) Matches() int {
	n := 0
	for _, d := range r.Diffs {
		if d.Status == DiffMatch {
			n++
		}
	}
	return n
}
