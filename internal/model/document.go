package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Stage identifies where a document sits in the fixed pipeline graph.
type Stage string

const (
	StageIngested     Stage = "INGESTED"
	StageHILRequired  Stage = "HIL_REQUIRED"
	StageHILConfirmed Stage = "HIL_CONFIRMED"
	StageFetchPending Stage = "FETCH_PENDING"
	StageFetched      Stage = "FETCHED"
	StageReconciled   Stage = "RECONCILED"
	StageFinalReview  Stage = "FINAL_REVIEW"
	StageApproved     Stage = "APPROVED"
	StageRejected     Stage = "REJECTED"
	StageFailed       Stage = "FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Stage) Terminal() bool {
	switch s {
	case StageApproved, StageRejected, StageFailed:
		return true
	default:
		return false
	}
}

// ParseStage converts a string into a Stage.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageIngested, StageHILRequired, StageHILConfirmed, StageFetchPending,
		StageFetched, StageReconciled, StageFinalReview,
		StageApproved, StageRejected, StageFailed:
		return Stage(s), nil
	default:
		return "", eris.Errorf("unknown stage: %q", s)
	}
}

// Document is the unit of work the pipeline advances. It is owned by the
// coordinator and mutated only through validated transitions.
type Document struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	DocType   string    `json:"doc_type"`
	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
