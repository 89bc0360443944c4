package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Decision is the final disposition of a document.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// ParseDecision converts a string into a Decision.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApproved, DecisionRejected:
		return Decision(s), nil
	default:
		return "", eris.Errorf("unknown decision: %q (valid: APPROVED, REJECTED)", s)
	}
}

// Stage returns the terminal stage a decision maps to.
func (d Decision) Stage() Stage {
	if d == DecisionApproved {
		return StageApproved
	}
	return StageRejected
}

// FinalDecision records the terminal disposition. At most one exists per
// document; finalize is terminal.
type FinalDecision struct {
	Decision  Decision  `json:"decision"`
	Decider   string    `json:"decider"`
	Notes     string    `json:"notes,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Same reports whether another decision carries identical input, used by the
// finalize idempotence check.
func (d *FinalDecision) Same(other *FinalDecision) bool {
	if d == nil || other == nil {
		return false
	}
	return d.Decision == other.Decision && d.Decider == other.Decider && d.Notes == other.Notes
}
