package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/docpipe/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	doc_type   TEXT NOT NULL,
	stage      TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	document_id TEXT NOT NULL REFERENCES documents(id),
	stage       TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	fields      TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	PRIMARY KEY (document_id, stage, seq)
);

CREATE TABLE IF NOT EXISTS fetch_outcomes (
	document_id TEXT NOT NULL REFERENCES documents(id),
	seq         INTEGER NOT NULL,
	aggregate   TEXT NOT NULL,
	results     TEXT NOT NULL,
	fetched_at  DATETIME NOT NULL,
	PRIMARY KEY (document_id, seq)
);

CREATE TABLE IF NOT EXISTS reconciliations (
	document_id   TEXT NOT NULL REFERENCES documents(id),
	seq           INTEGER NOT NULL,
	strategy      TEXT NOT NULL,
	overall_score REAL NOT NULL,
	diffs         TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	PRIMARY KEY (document_id, seq)
);

CREATE TABLE IF NOT EXISTS decisions (
	document_id TEXT PRIMARY KEY REFERENCES documents(id),
	decision    TEXT NOT NULL,
	decider     TEXT NOT NULL,
	notes       TEXT,
	decided_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	document_id TEXT NOT NULL REFERENCES documents(id),
	seq         INTEGER NOT NULL,
	actor       TEXT NOT NULL,
	action      TEXT NOT NULL,
	from_stage  TEXT,
	to_stage    TEXT,
	outcome     TEXT NOT NULL,
	payload     TEXT,
	at          DATETIME NOT NULL,
	PRIMARY KEY (document_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_documents_stage ON documents(stage);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document, audit model.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, doc_type, stage, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.DocType, string(doc.Stage), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert document")
	}
	if err := sqliteAppendAudit(ctx, tx, doc.ID, audit); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	var stage string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, doc_type, stage, created_at, updated_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.DocType, &stage, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: document %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", id)
	}
	doc.Stage = model.Stage(stage)
	return &doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, stage model.Stage, limit int) ([]model.Document, error) {
	query := `SELECT id, filename, doc_type, stage, created_at, updated_at FROM documents`
	args := []any{}
	if stage != "" {
		query += ` WHERE stage = ?`
		args = append(args, string(stage))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		var st string
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.DocType, &st, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		doc.Stage = model.Stage(st)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) CommitTransition(ctx context.Context, t *Transition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET stage = ?, updated_at = ? WHERE id = ? AND stage = ?`,
		string(t.To), now, t.DocumentID, string(t.From),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update stage %s", t.DocumentID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrStageConflict, "sqlite: document %s not at %s", t.DocumentID, t.From)
	}

	switch {
	case t.Snapshot != nil:
		fields, err := json.Marshal(t.Snapshot)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal snapshot")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO snapshots (document_id, stage, seq, fields, created_at)
			 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshots WHERE document_id = ? AND stage = ?), ?, ?)`,
			t.DocumentID, string(t.To), t.DocumentID, string(t.To), string(fields), now,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert snapshot")
		}
	case t.Outcome != nil:
		results, err := json.Marshal(t.Outcome.Results)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal fetch results")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fetch_outcomes (document_id, seq, aggregate, results, fetched_at)
			 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM fetch_outcomes WHERE document_id = ?), ?, ?, ?)`,
			t.DocumentID, t.DocumentID, string(t.Outcome.Aggregate), string(results), t.Outcome.FetchedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert fetch outcome")
		}
	case t.Reconciliation != nil:
		diffs, err := json.Marshal(t.Reconciliation.Diffs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal diffs")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reconciliations (document_id, seq, strategy, overall_score, diffs, created_at)
			 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM reconciliations WHERE document_id = ?), ?, ?, ?, ?)`,
			t.DocumentID, t.DocumentID, t.Reconciliation.Strategy, t.Reconciliation.OverallScore,
			string(diffs), t.Reconciliation.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert reconciliation")
		}
	case t.Decision != nil:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO decisions (document_id, decision, decider, notes, decided_at) VALUES (?, ?, ?, ?, ?)`,
			t.DocumentID, string(t.Decision.Decision), t.Decision.Decider, t.Decision.Notes, t.Decision.DecidedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert decision")
		}
	}

	if err := sqliteAppendAudit(ctx, tx, t.DocumentID, t.Audit); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func sqliteAppendAudit(ctx context.Context, ex execer, documentID string, e model.AuditEntry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO audit_log (document_id, seq, actor, action, from_stage, to_stage, outcome, payload, at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_log WHERE document_id = ?), ?, ?, ?, ?, ?, ?, ?)`,
		documentID, documentID, e.Actor, e.Action, string(e.FromStage), string(e.ToStage),
		string(e.Outcome), string(e.Payload), at,
	)
	return eris.Wrap(err, "sqlite: append audit")
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	return sqliteAppendAudit(ctx, s.db, entry.DocumentID, entry)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, documentID string) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, seq, actor, action, from_stage, to_stage, outcome, payload, at
		 FROM audit_log WHERE document_id = ? ORDER BY seq ASC`, documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var fromStage, toStage, outcome, payload string
		if err := rows.Scan(&e.DocumentID, &e.Seq, &e.Actor, &e.Action, &fromStage, &toStage, &outcome, &payload, &e.At); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		e.FromStage = model.Stage(fromStage)
		e.ToStage = model.Stage(toStage)
		e.Outcome = model.AuditOutcome(outcome)
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, documentID string) (model.Snapshot, error) {
	var fields string
	err := s.db.QueryRowContext(ctx,
		`SELECT fields FROM snapshots WHERE document_id = ? ORDER BY rowid DESC LIMIT 1`,
		documentID,
	).Scan(&fields)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: snapshot for %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest snapshot %s", documentID)
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(fields), &snap); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal snapshot")
	}
	return snap, nil
}

func (s *SQLiteStore) LatestFetchOutcome(ctx context.Context, documentID string) (*model.FetchOutcome, error) {
	var aggregate, results string
	var fetchedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT aggregate, results, fetched_at FROM fetch_outcomes WHERE document_id = ? ORDER BY seq DESC LIMIT 1`,
		documentID,
	).Scan(&aggregate, &results, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: fetch outcome for %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest fetch outcome %s", documentID)
	}
	outcome := &model.FetchOutcome{
		Aggregate: model.AggregateStatus(aggregate),
		FetchedAt: fetchedAt,
	}
	if err := json.Unmarshal([]byte(results), &outcome.Results); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fetch results")
	}
	return outcome, nil
}

func (s *SQLiteStore) LatestReconciliation(ctx context.Context, documentID string) (*model.ReconciliationResult, error) {
	var strategy, diffs string
	var overall float64
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT strategy, overall_score, diffs, created_at FROM reconciliations WHERE document_id = ? ORDER BY seq DESC LIMIT 1`,
		documentID,
	).Scan(&strategy, &overall, &diffs, &createdAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: reconciliation for %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest reconciliation %s", documentID)
	}
	return scanReconciliation(strategy, overall, diffs, createdAt)
}

func (s *SQLiteStore) ListReconciliations(ctx context.Context, documentID string) ([]model.ReconciliationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strategy, overall_score, diffs, created_at FROM reconciliations WHERE document_id = ? ORDER BY seq ASC`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reconciliations")
	}
	defer rows.Close()

	var out []model.ReconciliationResult
	for rows.Next() {
		var strategy, diffs string
		var overall float64
		var createdAt time.Time
		if err := rows.Scan(&strategy, &overall, &diffs, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reconciliation")
		}
		r, err := scanReconciliation(strategy, overall, diffs, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanReconciliation(strategy string, overall float64, diffs string, createdAt time.Time) (*model.ReconciliationResult, error) {
	r := &model.ReconciliationResult{
		Strategy:     strategy,
		OverallScore: overall,
		CreatedAt:    createdAt,
	}
	if err := json.Unmarshal([]byte(diffs), &r.Diffs); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal diffs")
	}
	return r, nil
}

func (s *SQLiteStore) GetDecision(ctx context.Context, documentID string) (*model.FinalDecision, error) {
	var d model.FinalDecision
	var decision string
	var notes sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT decision, decider, notes, decided_at FROM decisions WHERE document_id = ?`, documentID,
	).Scan(&decision, &d.Decider, &notes, &d.DecidedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: decision for %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get decision %s", documentID)
	}
	d.Decision = model.Decision(decision)
	d.Notes = notes.String
	return &d, nil
}
