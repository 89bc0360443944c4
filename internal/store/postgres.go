package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docpipe/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	doc_type   TEXT NOT NULL,
	stage      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	stage       TEXT NOT NULL,
	seq         BIGINT NOT NULL,
	fields      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, stage, seq)
);

CREATE TABLE IF NOT EXISTS fetch_outcomes (
	document_id TEXT NOT NULL REFERENCES documents(id),
	seq         BIGINT NOT NULL,
	aggregate   TEXT NOT NULL,
	results     JSONB NOT NULL,
	fetched_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (document_id, seq)
);

CREATE TABLE IF NOT EXISTS reconciliations (
	document_id   TEXT NOT NULL REFERENCES documents(id),
	seq           BIGINT NOT NULL,
	strategy      TEXT NOT NULL,
	overall_score DOUBLE PRECISION NOT NULL,
	diffs         JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (document_id, seq)
);

CREATE TABLE IF NOT EXISTS decisions (
	document_id TEXT PRIMARY KEY REFERENCES documents(id),
	decision    TEXT NOT NULL,
	decider     TEXT NOT NULL,
	notes       TEXT,
	decided_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	document_id TEXT NOT NULL REFERENCES documents(id),
	seq         BIGINT NOT NULL,
	actor       TEXT NOT NULL,
	action      TEXT NOT NULL,
	from_stage  TEXT,
	to_stage    TEXT,
	outcome     TEXT NOT NULL,
	payload     JSONB,
	at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (document_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_documents_stage ON documents(stage);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document, audit model.AuditEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO documents (id, filename, doc_type, stage, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.Filename, doc.DocType, string(doc.Stage), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert document")
	}
	if err := pgAppendAudit(ctx, tx, doc.ID, audit); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	var stage string
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, doc_type, stage, created_at, updated_at FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.DocType, &stage, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: document %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	doc.Stage = model.Stage(stage)
	return &doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, stage model.Stage, limit int) ([]model.Document, error) {
	query := `SELECT id, filename, doc_type, stage, created_at, updated_at FROM documents`
	args := []any{}
	if stage != "" {
		query += ` WHERE stage = $1`
		args = append(args, string(stage))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		if len(args) == 0 {
			query += ` LIMIT $1`
		} else {
			query += ` LIMIT $2`
		}
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		var st string
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.DocType, &st, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		doc.Stage = model.Stage(st)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) CommitTransition(ctx context.Context, t *Transition) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE documents SET stage = $1, updated_at = $2 WHERE id = $3 AND stage = $4`,
		string(t.To), now, t.DocumentID, string(t.From),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update stage %s", t.DocumentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStageConflict, "postgres: document %s not at %s", t.DocumentID, t.From)
	}

	switch {
	case t.Snapshot != nil:
		fields, err := json.Marshal(t.Snapshot)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal snapshot")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO snapshots (document_id, stage, seq, fields, created_at)
			 VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshots WHERE document_id = $1 AND stage = $2), $3, $4)`,
			t.DocumentID, string(t.To), fields, now,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert snapshot")
		}
	case t.Outcome != nil:
		results, err := json.Marshal(t.Outcome.Results)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal fetch results")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO fetch_outcomes (document_id, seq, aggregate, results, fetched_at)
			 VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM fetch_outcomes WHERE document_id = $1), $2, $3, $4)`,
			t.DocumentID, string(t.Outcome.Aggregate), results, t.Outcome.FetchedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert fetch outcome")
		}
	case t.Reconciliation != nil:
		diffs, err := json.Marshal(t.Reconciliation.Diffs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal diffs")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO reconciliations (document_id, seq, strategy, overall_score, diffs, created_at)
			 VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM reconciliations WHERE document_id = $1), $2, $3, $4, $5)`,
			t.DocumentID, t.Reconciliation.Strategy, t.Reconciliation.OverallScore, diffs, t.Reconciliation.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert reconciliation")
		}
	case t.Decision != nil:
		_, err = tx.Exec(ctx,
			`INSERT INTO decisions (document_id, decision, decider, notes, decided_at) VALUES ($1, $2, $3, $4, $5)`,
			t.DocumentID, string(t.Decision.Decision), t.Decision.Decider, t.Decision.Notes, t.Decision.DecidedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert decision")
		}
	}

	if err := pgAppendAudit(ctx, tx, t.DocumentID, t.Audit); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// pgExecer covers both Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func pgAppendAudit(ctx context.Context, ex pgExecer, documentID string, e model.AuditEntry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var payload any
	if len(e.Payload) > 0 {
		payload = []byte(e.Payload)
	}
	_, err := ex.Exec(ctx,
		`INSERT INTO audit_log (document_id, seq, actor, action, from_stage, to_stage, outcome, payload, at)
		 VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_log WHERE document_id = $1), $2, $3, $4, $5, $6, $7, $8)`,
		documentID, e.Actor, e.Action, string(e.FromStage), string(e.ToStage), string(e.Outcome), payload, at,
	)
	return eris.Wrap(err, "postgres: append audit")
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	return pgAppendAudit(ctx, s.pool, entry.DocumentID, entry)
}

func (s *PostgresStore) ListAudit(ctx context.Context, documentID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id, seq, actor, action, from_stage, to_stage, outcome, payload, at
		 FROM audit_log WHERE document_id = $1 ORDER BY seq ASC`, documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var fromStage, toStage, outcome string
		var payload []byte
		if err := rows.Scan(&e.DocumentID, &e.Seq, &e.Actor, &e.Action, &fromStage, &toStage, &outcome, &payload, &e.At); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		e.FromStage = model.Stage(fromStage)
		e.ToStage = model.Stage(toStage)
		e.Outcome = model.AuditOutcome(outcome)
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, documentID string) (model.Snapshot, error) {
	var fields []byte
	err := s.pool.QueryRow(ctx,
		`SELECT fields FROM snapshots WHERE document_id = $1 ORDER BY id DESC LIMIT 1`, documentID,
	).Scan(&fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: snapshot for %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest snapshot %s", documentID)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(fields, &snap); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal snapshot")
	}
	return snap, nil
}

func (s *PostgresStore) LatestFetchOutcome(ctx context.Context, documentID string) (*model.FetchOutcome, error) {
	var aggregate string
	var results []byte
	var fetchedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT aggregate, results, fetched_at FROM fetch_outcomes WHERE document_id = $1 ORDER BY seq DESC LIMIT 1`,
		documentID,
	).Scan(&aggregate, &results, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: fetch outcome for %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest fetch outcome %s", documentID)
	}
	outcome := &model.FetchOutcome{
		Aggregate: model.AggregateStatus(aggregate),
		FetchedAt: fetchedAt,
	}
	if err := json.Unmarshal(results, &outcome.Results); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal fetch results")
	}
	return outcome, nil
}

func (s *PostgresStore) LatestReconciliation(ctx context.Context, documentID string) (*model.ReconciliationResult, error) {
	var strategy string
	var diffs []byte
	var overall float64
	var createdAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT strategy, overall_score, diffs, created_at FROM reconciliations WHERE document_id = $1 ORDER BY seq DESC LIMIT 1`,
		documentID,
	).Scan(&strategy, &overall, &diffs, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: reconciliation for %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest reconciliation %s", documentID)
	}
	return scanReconciliation(strategy, overall, string(diffs), createdAt)
}

func (s *PostgresStore) ListReconciliations(ctx context.Context, documentID string) ([]model.ReconciliationResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT strategy, overall_score, diffs, created_at FROM reconciliations WHERE document_id = $1 ORDER BY seq ASC`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reconciliations")
	}
	defer rows.Close()

	var out []model.ReconciliationResult
	for rows.Next() {
		var strategy string
		var diffs []byte
		var overall float64
		var createdAt time.Time
		if err := rows.Scan(&strategy, &overall, &diffs, &createdAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reconciliation")
		}
		r, err := scanReconciliation(strategy, overall, string(diffs), createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDecision(ctx context.Context, documentID string) (*model.FinalDecision, error) {
	var d model.FinalDecision
	var decision string
	var notes *string
	err := s.pool.QueryRow(ctx,
		`SELECT decision, decider, notes, decided_at FROM decisions WHERE document_id = $1`, documentID,
	).Scan(&decision, &d.Decider, &notes, &d.DecidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: decision for %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get decision %s", documentID)
	}
	d.Decision = model.Decision(decision)
	if notes != nil {
		d.Notes = *notes
	}
	return &d, nil
}
