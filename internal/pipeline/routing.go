package pipeline

import "github.com/sells-group/docpipe/internal/model"

// RouteByConfidence decides where an extracted document goes after ingest.
// A document needs human review when any field's confidence is at or below
// the threshold; a missing confidence counts as 0.
func RouteByConfidence(snap model.Snapshot, threshold float64) model.Stage {
	if snap.MinConfidence() <= threshold {
		return model.StageHILRequired
	}
	return model.StageHILConfirmed
}
