package model

import "time"

// FetchStatus classifies a single target's outcome.
type FetchStatus string

const (
	FetchSuccess FetchStatus = "SUCCESS"
	FetchTimeout FetchStatus = "TIMEOUT"
	FetchError   FetchStatus = "ERROR"
)

// AggregateStatus classifies a multi-target fetch outcome.
type AggregateStatus string

const (
	FetchComplete AggregateStatus = "COMPLETE"
	FetchPartial  AggregateStatus = "PARTIAL"
	FetchFailed   AggregateStatus = "FAILED"
)

// FetchResult is the resolved outcome for exactly one target. Latency is
// stored in whole milliseconds so the persisted JSON matches its label.
type FetchResult struct {
	Target    string           `json:"target"`
	Status    FetchStatus      `json:"status"`
	Payload   map[string]Value `json:"payload,omitempty"`
	Error     string           `json:"error,omitempty"`
	LatencyMS int64            `json:"latency_ms"`
}

// FetchOutcome is a document's fetch outcome: one result per configured
// target plus the aggregate classification.
type FetchOutcome struct {
	Results   []FetchResult   `json:"results"`
	Aggregate AggregateStatus `json:"aggregate"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Successes returns the results that resolved to SUCCESS.
func (o *FetchOutcome) Successes() []FetchResult {
	var out []FetchResult
	for _, r := range o.Results {
		if r.Status == FetchSuccess {
			out = append(out, r)
		}
	}
	return out
}

// Targets returns the target names in result order.
func (o *FetchOutcome) Targets() []string {
	names := make([]string, len(o.Results))
	for i, r := range o.Results {
		names[i] = r.Target
	}
	return names
}

// AggregateOf classifies a result set: COMPLETE when all succeeded, FAILED
// when none did, PARTIAL otherwise.
func AggregateOf(results []FetchResult) AggregateStatus {
	succeeded := 0
	for _, r := range results {
		if r.Status == FetchSuccess {
			succeeded++
		}
	}
	switch {
	case len(results) == 0 || succeeded == 0:
		return FetchFailed
	case succeeded == len(results):
		return FetchComplete
	default:
		return FetchPartial
	}
}
