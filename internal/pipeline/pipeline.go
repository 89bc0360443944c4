// Package pipeline coordinates documents through the reconciliation stages.
// All stage transitions go through the Coordinator, which validates the
// stage graph, serializes work per document, and records every attempt in
// the audit log.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docpipe/internal/config"
	"github.com/sells-group/docpipe/internal/extract"
	"github.com/sells-group/docpipe/internal/fetch"
	"github.com/sells-group/docpipe/internal/model"
	"github.com/sells-group/docpipe/internal/reconcile"
	"github.com/sells-group/docpipe/internal/store"
)

// Coordinator owns document lifecycles. It is safe for concurrent use;
// operations on the same document are serialized.
type Coordinator struct {
	store     store.Store
	extractor extract.Extractor
	orch      *fetch.Orchestrator
	engine    *reconcile.Engine
	targets   []string
	cfg       config.PipelineConfig
	locks     *keyedMutex
}

// New creates a Coordinator. targets is the default target set used when
// a fetch request does not name its own.
func New(st store.Store, ex extract.Extractor, orch *fetch.Orchestrator, eng *reconcile.Engine, targets []string, cfg config.PipelineConfig) *Coordinator {
	return &Coordinator{
		store:     st,
		extractor: ex,
		orch:      orch,
		engine:    eng,
		targets:   targets,
		cfg:       cfg,
		locks:     newKeyedMutex(),
	}
}

// Ingest creates a document, extracts its fields, and routes it by
// extraction confidence to HIL_REQUIRED or HIL_CONFIRMED.
func (c *Coordinator) Ingest(ctx context.Context, filename, docType string, content []byte) (*model.Document, error) {
	if filename == "" {
		return nil, validationf("ingest: filename is required")
	}
	if docType == "" {
		return nil, validationf("ingest: doc_type is required")
	}
	if len(content) == 0 {
		return nil, validationf("ingest: empty document")
	}

	now := time.Now().UTC()
	doc := &model.Document{
		ID:        uuid.NewString(),
		Filename:  filename,
		DocType:   docType,
		Stage:     model.StageIngested,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.store.CreateDocument(ctx, doc, model.AuditEntry{
		DocumentID: doc.ID,
		Actor:      model.ActorSystem,
		Action:     "ingest",
		ToStage:    model.StageIngested,
		Outcome:    model.AuditCommitted,
		Payload:    model.AuditPayload(map[string]string{"filename": filename, "doc_type": docType}),
	}); err != nil {
		return nil, &PersistenceError{Op: "ingest", Err: err}
	}

	snap, err := c.extractor.Extract(ctx, doc, content)
	if err != nil {
		c.markFailed(ctx, doc.ID, model.StageIngested, "ingest", err)
		return nil, &ExtractionError{Err: err}
	}

	to := RouteByConfidence(snap, c.cfg.ConfidenceThreshold)
	if err := c.store.CommitTransition(ctx, &store.Transition{
		DocumentID: doc.ID,
		From:       model.StageIngested,
		To:         to,
		Snapshot:   snap,
		Audit: model.AuditEntry{
			DocumentID: doc.ID,
			Actor:      model.ActorSystem,
			Action:     "route.confidence",
			FromStage:  model.StageIngested,
			ToStage:    to,
			Outcome:    model.AuditCommitted,
			Payload: model.AuditPayload(map[string]any{
				"min_confidence": snap.MinConfidence(),
				"threshold":      c.cfg.ConfidenceThreshold,
			}),
		},
	}); err != nil {
		c.markFailed(ctx, doc.ID, model.StageIngested, "ingest", err)
		return nil, &PersistenceError{Op: "ingest", Err: err}
	}
	doc.Stage = to

	zap.L().Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("doc_type", docType),
		zap.String("stage", string(to)),
		zap.Int("fields", len(snap)))
	return doc, nil
}

// SubmitCorrection applies reviewer corrections to a document awaiting
// review and confirms it. An empty correction list confirms the extracted
// snapshot as is. Correcting an already confirmed document returns it
// unchanged.
func (c *Coordinator) SubmitCorrection(ctx context.Context, docID, reviewer string, corrections []model.Correction) (*model.Document, error) {
	if reviewer == "" {
		return nil, validationf("correct: reviewer is required")
	}
	for _, corr := range corrections {
		if corr.Field.Name == "" {
			return nil, validationf("correct: correction without a field name")
		}
	}

	unlock := c.locks.Lock(docID)
	defer unlock()

	doc, err := c.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Stage == model.StageHILConfirmed {
		c.appendAudit(ctx, model.AuditEntry{
			DocumentID: docID,
			Actor:      reviewer,
			Action:     "correct.duplicate",
			FromStage:  doc.Stage,
			Outcome:    model.AuditRejected,
		})
		return doc, nil
	}
	if err := guard("correct", doc.Stage, model.StageHILRequired); err != nil {
		c.recordRejected(ctx, docID, reviewer, "correct", doc.Stage, nil)
		return nil, err
	}

	snap, err := c.store.LatestSnapshot(ctx, docID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: snapshot for %s", docID)
	}
	applied := snap.Apply(corrections)

	if err := c.store.CommitTransition(ctx, &store.Transition{
		DocumentID: docID,
		From:       model.StageHILRequired,
		To:         model.StageHILConfirmed,
		Snapshot:   applied,
		Audit: model.AuditEntry{
			DocumentID: docID,
			Actor:      reviewer,
			Action:     "correct",
			FromStage:  model.StageHILRequired,
			ToStage:    model.StageHILConfirmed,
			Outcome:    model.AuditCommitted,
			Payload:    model.AuditPayload(map[string]any{"corrections": corrections}),
		},
	}); err != nil {
		if errors.Is(err, store.ErrStageConflict) {
			return nil, &StateTransitionError{Op: "correct", Current: doc.Stage, Wanted: []model.Stage{model.StageHILRequired}}
		}
		c.markFailed(ctx, docID, model.StageHILRequired, "correct", err)
		return nil, &PersistenceError{Op: "correct", Err: err}
	}
	doc.Stage = model.StageHILConfirmed

	zap.L().Info("document confirmed",
		zap.String("document_id", docID),
		zap.String("reviewer", reviewer),
		zap.Int("corrections", len(corrections)))
	return doc, nil
}

// StartFetch runs the comparator fetch for a confirmed document. When every
// target fails the document stays at FETCH_PENDING and the outcome is
// returned alongside a FetchFailedError so the caller can retry. Fetching a
// document that already fetched returns the stored outcome.
func (c *Coordinator) StartFetch(ctx context.Context, docID string, targets []string) (*model.FetchOutcome, error) {
	unlock := c.locks.Lock(docID)
	defer unlock()

	doc, err := c.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if stageReached(doc.Stage, model.StageFetched) {
		outcome, err := c.store.LatestFetchOutcome(ctx, docID)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: fetch outcome for %s", docID)
		}
		c.appendAudit(ctx, model.AuditEntry{
			DocumentID: docID,
			Actor:      model.ActorSystem,
			Action:     "fetch.duplicate",
			FromStage:  doc.Stage,
			Outcome:    model.AuditRejected,
		})
		return outcome, nil
	}
	if err := guard("fetch", doc.Stage, model.StageHILConfirmed, model.StageFetchPending); err != nil {
		c.recordRejected(ctx, docID, model.ActorSystem, "fetch", doc.Stage, nil)
		return nil, err
	}

	if doc.Stage == model.StageHILConfirmed {
		if err := c.store.CommitTransition(ctx, &store.Transition{
			DocumentID: docID,
			From:       model.StageHILConfirmed,
			To:         model.StageFetchPending,
			Audit: model.AuditEntry{
				DocumentID: docID,
				Actor:      model.ActorSystem,
				Action:     "fetch.start",
				FromStage:  model.StageHILConfirmed,
				ToStage:    model.StageFetchPending,
				Outcome:    model.AuditCommitted,
			},
		}); err != nil {
			c.markFailed(ctx, docID, model.StageHILConfirmed, "fetch", err)
			return nil, &PersistenceError{Op: "fetch", Err: err}
		}
		doc.Stage = model.StageFetchPending
	}

	snap, err := c.store.LatestSnapshot(ctx, docID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: snapshot for %s", docID)
	}
	if len(targets) == 0 {
		targets = c.targets
	}
	if len(targets) == 0 {
		return nil, validationf("fetch: no targets configured")
	}

	outcome, err := c.orch.Run(ctx, doc, snap, targets)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: fetch %s", docID)
	}

	if outcome.Aggregate == model.FetchFailed {
		c.appendAudit(ctx, model.AuditEntry{
			DocumentID: docID,
			Actor:      model.ActorSystem,
			Action:     "fetch.failed",
			FromStage:  model.StageFetchPending,
			Outcome:    model.AuditRejected,
			Payload:    model.AuditPayload(outcome),
		})
		return outcome, &FetchFailedError{Outcome: outcome}
	}

	if err := c.store.CommitTransition(ctx, &store.Transition{
		DocumentID: docID,
		From:       model.StageFetchPending,
		To:         model.StageFetched,
		Outcome:    outcome,
		Audit: model.AuditEntry{
			DocumentID: docID,
			Actor:      model.ActorSystem,
			Action:     "fetch.complete",
			FromStage:  model.StageFetchPending,
			ToStage:    model.StageFetched,
			Outcome:    model.AuditCommitted,
			Payload: model.AuditPayload(map[string]any{
				"aggregate": outcome.Aggregate,
				"targets":   outcome.Targets(),
			}),
		},
	}); err != nil {
		c.markFailed(ctx, docID, model.StageFetchPending, "fetch", err)
		return nil, &PersistenceError{Op: "fetch", Err: err}
	}
	return outcome, nil
}

// Reconcile compares the document snapshot against its fetched comparator
// data using the named strategy. An unknown strategy leaves the document
// at FETCHED. Reconciling an already reconciled document with the same
// strategy returns the stored result; a different strategy is rejected.
func (c *Coordinator) Reconcile(ctx context.Context, docID, strategy string) (*model.ReconciliationResult, error) {
	unlock := c.locks.Lock(docID)
	defer unlock()

	doc, err := c.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if stageReached(doc.Stage, model.StageReconciled) {
		stored, err := c.store.LatestReconciliation(ctx, docID)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: reconciliation for %s", docID)
		}
		if strat, perr := reconcile.ParseStrategy(strategy); perr == nil && string(strat) == stored.Strategy {
			c.appendAudit(ctx, model.AuditEntry{
				DocumentID: docID,
				Actor:      model.ActorSystem,
				Action:     "reconcile.duplicate",
				FromStage:  doc.Stage,
				Outcome:    model.AuditRejected,
			})
			return stored, nil
		}
		c.recordRejected(ctx, docID, model.ActorSystem, "reconcile", doc.Stage, map[string]any{
			"strategy": strategy,
			"reason":   "conflicting reconciliation already recorded",
		})
		return nil, &StateTransitionError{Op: "reconcile", Current: doc.Stage, Wanted: []model.Stage{model.StageFetched}}
	}
	if err := guard("reconcile", doc.Stage, model.StageFetched); err != nil {
		c.recordRejected(ctx, docID, model.ActorSystem, "reconcile", doc.Stage, nil)
		return nil, err
	}

	strat, err := reconcile.ParseStrategy(strategy)
	if err != nil {
		c.appendAudit(ctx, model.AuditEntry{
			DocumentID: docID,
			Actor:      model.ActorSystem,
			Action:     "reconcile",
			FromStage:  doc.Stage,
			Outcome:    model.AuditRejected,
			Payload:    model.AuditPayload(map[string]string{"strategy": strategy, "reason": "unknown strategy"}),
		})
		return nil, err
	}

	snap, err := c.store.LatestSnapshot(ctx, docID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: snapshot for %s", docID)
	}
	outcome, err := c.store.LatestFetchOutcome(ctx, docID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: fetch outcome for %s", docID)
	}

	result, err := c.engine.Reconcile(strat, snap, outcome.Results)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: reconcile %s", docID)
	}

	if err := c.store.CommitTransition(ctx, &store.Transition{
		DocumentID:     docID,
		From:           model.StageFetched,
		To:             model.StageReconciled,
		Reconciliation: result,
		Audit: model.AuditEntry{
			DocumentID: docID,
			Actor:      model.ActorSystem,
			Action:     "reconcile.complete",
			FromStage:  model.StageFetched,
			ToStage:    model.StageReconciled,
			Outcome:    model.AuditCommitted,
			Payload: model.AuditPayload(map[string]any{
				"strategy":      result.Strategy,
				"overall_score": result.OverallScore,
				"matches":       result.Matches(),
				"diffs":         len(result.Diffs),
			}),
		},
	}); err != nil {
		c.markFailed(ctx, docID, model.StageFetched, "reconcile", err)
		return nil, &PersistenceError{Op: "reconcile", Err: err}
	}

	zap.L().Info("document reconciled",
		zap.String("document_id", docID),
		zap.String("strategy", result.Strategy),
		zap.Float64("overall_score", result.OverallScore))

	if c.cfg.AutoDecision {
		if err := c.autoDecide(ctx, docID, result.OverallScore); err != nil {
			return result, err
		}
	}
	return result, nil
}

// autoDecide finalizes a freshly reconciled document when its score clears
// the configured thresholds. Scores between the thresholds stay at
// RECONCILED for a human decision.
func (c *Coordinator) autoDecide(ctx context.Context, docID string, score float64) error {
	var decision model.Decision
	switch {
	case score >= c.cfg.AutoApproveThreshold:
		decision = model.DecisionApproved
	case score <= c.cfg.AutoRejectThreshold:
		decision = model.DecisionRejected
	default:
		return nil
	}
	_, err := c.finalizeLocked(ctx, docID, &model.FinalDecision{
		Decision:  decision,
		Decider:   model.ActorSystem,
		Notes:     "auto decision by overall score",
		DecidedAt: time.Now().UTC(),
	})
	return err
}

// Finalize records the terminal decision for a document. Repeating an
// identical finalize returns the stored decision; a conflicting one fails.
func (c *Coordinator) Finalize(ctx context.Context, docID, decision, decider, notes string) (*model.FinalDecision, error) {
	if decider == "" {
		return nil, validationf("finalize: decider is required")
	}
	parsed, err := model.ParseDecision(decision)
	if err != nil {
		return nil, validationf("finalize: %s", err.Error())
	}

	unlock := c.locks.Lock(docID)
	defer unlock()

	return c.finalizeLocked(ctx, docID, &model.FinalDecision{
		Decision:  parsed,
		Decider:   decider,
		Notes:     notes,
		DecidedAt: time.Now().UTC(),
	})
}

func (c *Coordinator) finalizeLocked(ctx context.Context, docID string, d *model.FinalDecision) (*model.FinalDecision, error) {
	doc, err := c.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	if doc.Stage == model.StageApproved || doc.Stage == model.StageRejected {
		stored, err := c.store.GetDecision(ctx, docID)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: decision for %s", docID)
		}
		if stored.Same(d) {
			c.appendAudit(ctx, model.AuditEntry{
				DocumentID: docID,
				Actor:      d.Decider,
				Action:     "finalize.duplicate",
				FromStage:  doc.Stage,
				Outcome:    model.AuditRejected,
			})
			return stored, nil
		}
		c.recordRejected(ctx, docID, d.Decider, "finalize", doc.Stage, map[string]any{
			"decision": d.Decision,
			"reason":   "conflicting decision already recorded",
		})
		return nil, &StateTransitionError{Op: "finalize", Current: doc.Stage,
			Wanted: []model.Stage{model.StageReconciled, model.StageFinalReview}}
	}

	if err := guard("finalize", doc.Stage, model.StageReconciled, model.StageFinalReview); err != nil {
		c.recordRejected(ctx, docID, d.Decider, "finalize", doc.Stage, nil)
		return nil, err
	}

	if doc.Stage == model.StageReconciled {
		if err := c.store.CommitTransition(ctx, &store.Transition{
			DocumentID: docID,
			From:       model.StageReconciled,
			To:         model.StageFinalReview,
			Audit: model.AuditEntry{
				DocumentID: docID,
				Actor:      d.Decider,
				Action:     "review.enter",
				FromStage:  model.StageReconciled,
				ToStage:    model.StageFinalReview,
				Outcome:    model.AuditCommitted,
			},
		}); err != nil {
			c.markFailed(ctx, docID, model.StageReconciled, "finalize", err)
			return nil, &PersistenceError{Op: "finalize", Err: err}
		}
	}

	to := d.Decision.Stage()
	if err := c.store.CommitTransition(ctx, &store.Transition{
		DocumentID: docID,
		From:       model.StageFinalReview,
		To:         to,
		Decision:   d,
		Audit: model.AuditEntry{
			DocumentID: docID,
			Actor:      d.Decider,
			Action:     "finalize",
			FromStage:  model.StageFinalReview,
			ToStage:    to,
			Outcome:    model.AuditCommitted,
			Payload:    model.AuditPayload(d),
		},
	}); err != nil {
		c.markFailed(ctx, docID, model.StageFinalReview, "finalize", err)
		return nil, &PersistenceError{Op: "finalize", Err: err}
	}

	zap.L().Info("document finalized",
		zap.String("document_id", docID),
		zap.String("decision", string(d.Decision)),
		zap.String("decider", d.Decider))
	return d, nil
}

// GetDocument returns a document by id.
func (c *Coordinator) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	return c.store.GetDocument(ctx, docID)
}

// ListDocuments returns documents, optionally filtered by stage.
func (c *Coordinator) ListDocuments(ctx context.Context, stage model.Stage, limit int) ([]model.Document, error) {
	return c.store.ListDocuments(ctx, stage, limit)
}

// Audit returns the full audit trail for a document, oldest first.
func (c *Coordinator) Audit(ctx context.Context, docID string) ([]model.AuditEntry, error) {
	if _, err := c.store.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	return c.store.ListAudit(ctx, docID)
}

// Report is the assembled view of a document's pipeline history.
type Report struct {
	Document       *model.Document             `json:"document"`
	Snapshot       model.Snapshot              `json:"snapshot,omitempty"`
	FetchOutcome   *model.FetchOutcome         `json:"fetch_outcome,omitempty"`
	Reconciliation *model.ReconciliationResult `json:"reconciliation,omitempty"`
	Decision       *model.FinalDecision        `json:"decision,omitempty"`
	AuditEntries   int                         `json:"audit_entries"`
}

// Report assembles the latest outputs of every stage a document has
// reached. Stages not yet reached are omitted.
func (c *Coordinator) Report(ctx context.Context, docID string) (*Report, error) {
	doc, err := c.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	rep := &Report{Document: doc}

	if snap, err := c.store.LatestSnapshot(ctx, docID); err == nil {
		rep.Snapshot = snap
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "pipeline: report snapshot %s", docID)
	}
	if outcome, err := c.store.LatestFetchOutcome(ctx, docID); err == nil {
		rep.FetchOutcome = outcome
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "pipeline: report fetch %s", docID)
	}
	if rec, err := c.store.LatestReconciliation(ctx, docID); err == nil {
		rep.Reconciliation = rec
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "pipeline: report reconciliation %s", docID)
	}
	if dec, err := c.store.GetDecision(ctx, docID); err == nil {
		rep.Decision = dec
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "pipeline: report decision %s", docID)
	}

	entries, err := c.store.ListAudit(ctx, docID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: report audit %s", docID)
	}
	rep.AuditEntries = len(entries)
	return rep, nil
}

// recordRejected appends a REJECTED audit entry for an operation attempted
// in the wrong stage. Best effort: an audit write failure is logged, not
// returned, since the caller is already reporting the rejection.
func (c *Coordinator) recordRejected(ctx context.Context, docID, actor, action string, current model.Stage, payload map[string]any) {
	c.appendAudit(ctx, model.AuditEntry{
		DocumentID: docID,
		Actor:      actor,
		Action:     action,
		FromStage:  current,
		Outcome:    model.AuditRejected,
		Payload:    model.AuditPayload(payload),
	})
}

func (c *Coordinator) appendAudit(ctx context.Context, e model.AuditEntry) {
	if err := c.store.AppendAudit(ctx, e); err != nil {
		zap.L().Error("audit append failed",
			zap.String("document_id", e.DocumentID),
			zap.String("action", e.Action),
			zap.Error(err))
	}
}

// markFailed moves a document to FAILED after a persistence error mid
// operation. Best effort: the original error is what the caller reports.
func (c *Coordinator) markFailed(ctx context.Context, docID string, from model.Stage, op string, cause error) {
	err := c.store.CommitTransition(ctx, &store.Transition{
		DocumentID: docID,
		From:       from,
		To:         model.StageFailed,
		Audit: model.AuditEntry{
			DocumentID: docID,
			Actor:      model.ActorSystem,
			Action:     op + ".fail",
			FromStage:  from,
			ToStage:    model.StageFailed,
			Outcome:    model.AuditCommitted,
			Payload:    model.AuditPayload(map[string]string{"error": cause.Error()}),
		},
	})
	if err != nil {
		zap.L().Error("failed to mark document FAILED",
			zap.String("document_id", docID),
			zap.String("op", op),
			zap.Error(err))
	}
}
