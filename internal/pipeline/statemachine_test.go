package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docpipe/internal/model"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := [][2]model.Stage{
		{model.StageIngested, model.StageHILRequired},
		{model.StageIngested, model.StageHILConfirmed},
		{model.StageHILRequired, model.StageHILConfirmed},
		{model.StageHILConfirmed, model.StageFetchPending},
		{model.StageFetchPending, model.StageFetched},
		{model.StageFetched, model.StageReconciled},
		{model.StageReconciled, model.StageFinalReview},
		{model.StageFinalReview, model.StageApproved},
		{model.StageFinalReview, model.StageRejected},
	}
	for _, pair := range allowed {
		assert.True(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}

	denied := [][2]model.Stage{
		{model.StageIngested, model.StageFetched},
		{model.StageHILRequired, model.StageFetchPending},
		{model.StageFetched, model.StageApproved},
		{model.StageApproved, model.StageRejected},
		{model.StageHILConfirmed, model.StageHILRequired},
	}
	for _, pair := range denied {
		assert.False(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}

func TestCanTransitionToFailed(t *testing.T) {
	t.Parallel()

	for _, s := range []model.Stage{
		model.StageIngested, model.StageHILRequired, model.StageHILConfirmed,
		model.StageFetchPending, model.StageFetched, model.StageReconciled,
		model.StageFinalReview,
	} {
		assert.True(t, CanTransition(s, model.StageFailed), string(s))
	}
	assert.False(t, CanTransition(model.StageApproved, model.StageFailed))
	assert.False(t, CanTransition(model.StageRejected, model.StageFailed))
	assert.False(t, CanTransition(model.StageFailed, model.StageFailed))
}

func TestGuard(t *testing.T) {
	t.Parallel()

	assert.NoError(t, guard("fetch", model.StageHILConfirmed, model.StageHILConfirmed, model.StageFetchPending))

	err := guard("fetch", model.StageIngested, model.StageHILConfirmed, model.StageFetchPending)
	var stErr *StateTransitionError
	require.ErrorAs(t, err, &stErr)
	assert.Equal(t, "fetch", stErr.Op)
	assert.Equal(t, model.StageIngested, stErr.Current)
	assert.Contains(t, stErr.Error(), "HIL_CONFIRMED or FETCH_PENDING")
}

func TestRouteByConfidence(t *testing.T) {
	t.Parallel()

	threshold := 0.7

	t.Run("all above threshold confirms", func(t *testing.T) {
		t.Parallel()
		snap := model.Snapshot{
			"a": {Name: "a", Value: model.String("x"), Confidence: model.Confidence(0.9)},
			"b": {Name: "b", Value: model.String("y"), Confidence: model.Confidence(0.71)},
		}
		assert.Equal(t, model.StageHILConfirmed, RouteByConfidence(snap, threshold))
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		t.Parallel()
		snap := model.Snapshot{
			"a": {Name: "a", Value: model.String("x"), Confidence: model.Confidence(0.7)},
		}
		assert.Equal(t, model.StageHILRequired, RouteByConfidence(snap, threshold))
	})

	t.Run("missing confidence requires review", func(t *testing.T) {
		t.Parallel()
		snap := model.Snapshot{
			"a": {Name: "a", Value: model.String("x"), Confidence: model.Confidence(0.99)},
			"b": {Name: "b", Value: model.String("y")},
		}
		assert.Equal(t, model.StageHILRequired, RouteByConfidence(snap, threshold))
	})

	t.Run("empty snapshot requires review", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, model.StageHILRequired, RouteByConfidence(model.Snapshot{}, threshold))
	})
}
