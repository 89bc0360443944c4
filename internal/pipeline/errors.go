package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/docpipe/internal/model"
)

// ValidationError reports rejected operation input. The document, if any,
// is left untouched.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "pipeline: " + e.Msg
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ExtractionError reports a failed extraction during ingest. The document
// is marked FAILED before this error is returned.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return "pipeline: extraction failed: " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PersistenceError reports a storage write failure after the stage logic
// succeeded. The stage output is discarded and the operation is safe to
// retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("pipeline: %s: persist failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StateTransitionError reports an operation attempted against a document
// in the wrong stage. The attempt is recorded in the audit log as REJECTED
// before this error is returned.
type StateTransitionError struct {
	Op      string
	Current model.Stage
	Wanted  []model.Stage
}

func (e *StateTransitionError) Error() string {
	wanted := make([]string, len(e.Wanted))
	for i, s := range e.Wanted {
		wanted[i] = string(s)
	}
	return fmt.Sprintf("pipeline: %s requires stage %s, document is %s",
		e.Op, strings.Join(wanted, " or "), e.Current)
}

// FetchFailedError reports that every fetch target failed. The document
// stays at FETCH_PENDING so the fetch can be retried.
type FetchFailedError struct {
	Outcome *model.FetchOutcome
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("pipeline: all %d fetch targets failed, document left retryable", len(e.Outcome.Results))
}
