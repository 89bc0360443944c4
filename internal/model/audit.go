package model

import (
	"encoding/json"
	"time"
)

// Actor identities recorded on audit entries.
const (
	ActorSystem = "system"
)

// AuditOutcome distinguishes applied transitions from rejected attempts.
type AuditOutcome string

const (
	AuditCommitted AuditOutcome = "COMMITTED"
	AuditRejected  AuditOutcome = "REJECTED"
)

// AuditEntry is one record in a document's append-only history. Seq is
// assigned by the store, monotonically per document; entries are never
// mutated or deleted.
type AuditEntry struct {
	DocumentID string          `json:"document_id"`
	Seq        int64           `json:"seq"`
	Actor      string          `json:"actor"`
	Action     string          `json:"action"`
	FromStage  Stage           `json:"from_stage,omitempty"`
	ToStage    Stage           `json:"to_stage,omitempty"`
	Outcome    AuditOutcome    `json:"outcome"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	At         time.Time       `json:"at"`
}

// AuditPayload marshals a stage output snapshot for the audit record.
// Marshal failures degrade to an empty payload rather than blocking the
// transition; the stage output itself is persisted separately.
func AuditPayload(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
