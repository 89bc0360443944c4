package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docpipe/internal/model"
)

func TestTextExtractor(t *testing.T) {
	t.Parallel()

	doc := &model.Document{ID: "d", Filename: "invoice.txt", DocType: "invoice"}
	content := []byte(`# extraction fixture
vendor_name: Acme Corp
total: 1250.5
due_date: 2026-02-01
paid: false
po_number: PO-4471 @0.45

`)

	snap, err := NewTextExtractor(0.9).Extract(t.Context(), doc, content)
	require.NoError(t, err)
	require.Len(t, snap, 5)

	t.Run("values are typed by inference", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, model.KindString, snap["vendor_name"].Value.Kind)
		assert.Equal(t, 1250.5, snap["total"].Value.Num)
		assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), snap["due_date"].Value.Date)
		assert.Equal(t, model.KindBool, snap["paid"].Value.Kind)
		assert.False(t, snap["paid"].Value.Bool)
	})

	t.Run("default confidence applies", func(t *testing.T) {
		t.Parallel()
		require.NotNil(t, snap["vendor_name"].Confidence)
		assert.InDelta(t, 0.9, *snap["vendor_name"].Confidence, 1e-9)
	})

	t.Run("per-line confidence overrides", func(t *testing.T) {
		t.Parallel()
		fv := snap["po_number"]
		assert.Equal(t, "PO-4471", fv.Value.Str)
		require.NotNil(t, fv.Confidence)
		assert.InDelta(t, 0.45, *fv.Confidence, 1e-9)
	})

	t.Run("all fields marked EXTRACTED", func(t *testing.T) {
		t.Parallel()
		for _, fv := range snap {
			assert.Equal(t, model.ProvenanceExtracted, fv.Provenance)
		}
	})
}

func TestTextExtractorErrors(t *testing.T) {
	t.Parallel()

	ex := NewTextExtractor(0.9)
	doc := &model.Document{ID: "d", Filename: "bad.txt"}

	t.Run("line without separator", func(t *testing.T) {
		t.Parallel()
		_, err := ex.Extract(t.Context(), doc, []byte("no separator here\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing ':'")
	})

	t.Run("empty field name", func(t *testing.T) {
		t.Parallel()
		_, err := ex.Extract(t.Context(), doc, []byte(": orphan value\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty field name")
	})

	t.Run("no fields at all", func(t *testing.T) {
		t.Parallel()
		_, err := ex.Extract(t.Context(), doc, []byte("# only comments\n\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no fields")
	})
}
