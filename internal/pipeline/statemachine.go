package pipeline

import "github.com/sells-group/docpipe/internal/model"

// transitions is the stage graph. FAILED is additionally reachable from
// any non-terminal stage.
var transitions = map[model.Stage][]model.Stage{
	model.StageIngested:     {model.StageHILRequired, model.StageHILConfirmed},
	model.StageHILRequired:  {model.StageHILConfirmed},
	model.StageHILConfirmed: {model.StageFetchPending},
	model.StageFetchPending: {model.StageFetched},
	model.StageFetched:      {model.StageReconciled},
	model.StageReconciled:   {model.StageFinalReview},
	model.StageFinalReview:  {model.StageApproved, model.StageRejected},
}

// CanTransition reports whether from may advance directly to to.
func CanTransition(from, to model.Stage) bool {
	if to == model.StageFailed {
		return !from.Terminal() && from != model.StageFailed
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// stageRank orders the pipeline stages along the happy path. The two HIL
// stages share a rank, as do the two terminal decisions. FAILED is outside
// the ordering.
var stageRank = map[model.Stage]int{
	model.StageIngested:     0,
	model.StageHILRequired:  1,
	model.StageHILConfirmed: 1,
	model.StageFetchPending: 2,
	model.StageFetched:      3,
	model.StageReconciled:   4,
	model.StageFinalReview:  5,
	model.StageApproved:     6,
	model.StageRejected:     6,
}

// stageReached reports whether a document at stage s has reached or passed
// target. FAILED never counts as having reached anything.
func stageReached(s, target model.Stage) bool {
	sr, ok := stageRank[s]
	tr, tok := stageRank[target]
	return ok && tok && sr >= tr
}

// guard returns a StateTransitionError unless current is one of wanted.
func guard(op string, current model.Stage, wanted ...model.Stage) error {
	for _, w := range wanted {
		if current == w {
			return nil
		}
	}
	return &StateTransitionError{Op: op, Current: current, Wanted: wanted}
}
