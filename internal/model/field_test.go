package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotApply(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		"vendor_name": {Name: "vendor_name", Value: String("Acme Crop"), Confidence: Confidence(0.6), Provenance: ProvenanceExtracted},
		"total":       {Name: "total", Value: Number(1250), Confidence: Confidence(0.95), Provenance: ProvenanceExtracted},
	}

	applied := snap.Apply([]Correction{
		{
			Field:    FieldValue{Name: "vendor_name", Value: String("Acme Corp"), Confidence: Confidence(1)},
			Reviewer: "alice",
			At:       time.Now(),
		},
	})

	t.Run("correction wins and is marked CORRECTED", func(t *testing.T) {
		t.Parallel()
		fv := applied["vendor_name"]
		assert.Equal(t, "Acme Corp", fv.Value.Str)
		assert.Equal(t, ProvenanceCorrected, fv.Provenance)
	})

	t.Run("untouched fields survive", func(t *testing.T) {
		t.Parallel()
		fv := applied["total"]
		assert.Equal(t, float64(1250), fv.Value.Num)
		assert.Equal(t, ProvenanceExtracted, fv.Provenance)
	})

	t.Run("receiver is not modified", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "Acme Crop", snap["vendor_name"].Value.Str)
		assert.Equal(t, ProvenanceExtracted, snap["vendor_name"].Provenance)
	})

	t.Run("correction without a name is skipped", func(t *testing.T) {
		t.Parallel()
		out := snap.Apply([]Correction{{Field: FieldValue{Value: String("x")}}})
		assert.Len(t, out, 2)
	})
}

func TestSnapshotMinConfidence(t *testing.T) {
	t.Parallel()

	t.Run("lowest confidence wins", func(t *testing.T) {
		t.Parallel()
		snap := Snapshot{
			"a": {Name: "a", Value: String("x"), Confidence: Confidence(0.9)},
			"b": {Name: "b", Value: String("y"), Confidence: Confidence(0.4)},
		}
		assert.InDelta(t, 0.4, snap.MinConfidence(), 1e-9)
	})

	t.Run("missing confidence counts as zero", func(t *testing.T) {
		t.Parallel()
		snap := Snapshot{
			"a": {Name: "a", Value: String("x"), Confidence: Confidence(0.9)},
			"b": {Name: "b", Value: String("y")},
		}
		assert.Zero(t, snap.MinConfidence())
	})

	t.Run("empty snapshot is zero", func(t *testing.T) {
		t.Parallel()
		assert.Zero(t, Snapshot{}.MinConfidence())
	})
}

func TestSnapshotFieldNames(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		"total":       {Name: "total", Value: Number(1)},
		"due_date":    {Name: "due_date", Value: Date(time.Now())},
		"vendor_name": {Name: "vendor_name", Value: String("Acme")},
	}
	require.Equal(t, []string{"due_date", "total", "vendor_name"}, snap.FieldNames())
}
