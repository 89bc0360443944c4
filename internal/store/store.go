package store

import (
	"context"
	"errors"

	"github.com/sells-group/docpipe/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrStageConflict is returned when a guarded stage update matched no row,
// meaning the document's stage changed underneath the caller.
var ErrStageConflict = errors.New("store: stage conflict")

// Transition is one atomic stage advance: the document's stage update, at
// most one stage output, and the audit entry. Implementations commit all of
// it in a single transaction so the audit write happens-after the output is
// committed and before the operation returns.
type Transition struct {
	DocumentID string
	From       model.Stage
	To         model.Stage

	// At most one stage output is set.
	Snapshot       model.Snapshot
	Outcome        *model.FetchOutcome
	Reconciliation *model.ReconciliationResult
	Decision       *model.FinalDecision

	Audit model.AuditEntry
}

// Store is the persistence interface for the pipeline. The audit log is
// append-only; stage outputs accumulate by sequence and are never rewritten.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, doc *model.Document, audit model.AuditEntry) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, stage model.Stage, limit int) ([]model.Document, error)

	// Transitions
	CommitTransition(ctx context.Context, t *Transition) error

	// Audit
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	ListAudit(ctx context.Context, documentID string) ([]model.AuditEntry, error)

	// Stage outputs (latest by sequence)
	LatestSnapshot(ctx context.Context, documentID string) (model.Snapshot, error)
	LatestFetchOutcome(ctx context.Context, documentID string) (*model.FetchOutcome, error)
	LatestReconciliation(ctx context.Context, documentID string) (*model.ReconciliationResult, error)
	ListReconciliations(ctx context.Context, documentID string) ([]model.ReconciliationResult, error)
	GetDecision(ctx context.Context, documentID string) (*model.FinalDecision, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
