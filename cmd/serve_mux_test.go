package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docpipe/internal/config"
	"github.com/sells-group/docpipe/internal/extract"
	"github.com/sells-group/docpipe/internal/fetch"
	"github.com/sells-group/docpipe/internal/model"
	"github.com/sells-group/docpipe/internal/pipeline"
	"github.com/sells-group/docpipe/internal/reconcile"
	"github.com/sells-group/docpipe/internal/store"
)

func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(t.Context()))

	reg := fetch.NewRegistry()
	reg.Register(fetch.NewStaticConnector("registry", map[string]model.Value{
		"vendor_name": model.String("Acme Corp"),
		"total":       model.Number(1250.5),
	}))

	orch := fetch.NewOrchestrator(reg, fetch.Options{Timeout: time.Second})
	engine := reconcile.NewEngine(reconcile.Options{})
	coord := pipeline.New(st, extract.NewTextExtractor(0.9), orch, engine, reg.Names(),
		config.PipelineConfig{ConfidenceThreshold: 0.7})

	return &pipelineEnv{Store: st, Coordinator: coord, Targets: reg.Names()}
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestServeHealth(t *testing.T) {
	t.Parallel()

	mux := newMux(newTestEnv(t))
	rec := doJSON(t, mux, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeDocumentLifecycle(t *testing.T) {
	t.Parallel()

	mux := newMux(newTestEnv(t))

	rec := doJSON(t, mux, http.MethodPost, "/documents", map[string]string{
		"filename": "invoice.txt",
		"doc_type": "invoice",
		"content":  "vendor_name: Acme Corp\ntotal: 1250.5\n",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc model.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, model.StageHILConfirmed, doc.Stage)

	rec = doJSON(t, mux, http.MethodPost, "/documents/"+doc.ID+"/fetch", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, mux, http.MethodPost, "/documents/"+doc.ID+"/reconcile", map[string]string{"strategy": "LOOSE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result model.ReconciliationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, 1.0, result.OverallScore, 1e-9)

	rec = doJSON(t, mux, http.MethodPost, "/documents/"+doc.ID+"/finalize", map[string]string{
		"decision": "APPROVED", "decider": "bob",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, mux, http.MethodGet, "/documents/"+doc.ID+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rep pipeline.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, model.StageApproved, rep.Document.Stage)
	require.NotNil(t, rep.Decision)

	rec = doJSON(t, mux, http.MethodGet, "/documents/"+doc.ID+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []model.AuditEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.NotEmpty(t, entries)
}

func TestServeErrorMapping(t *testing.T) {
	t.Parallel()

	mux := newMux(newTestEnv(t))

	t.Run("unknown document is 404", func(t *testing.T) {
		t.Parallel()
		rec := doJSON(t, mux, http.MethodGet, "/documents/ghost", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid input is 400", func(t *testing.T) {
		t.Parallel()
		rec := doJSON(t, mux, http.MethodPost, "/documents", map[string]string{"doc_type": "invoice"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unextractable content is 422", func(t *testing.T) {
		t.Parallel()
		rec := doJSON(t, mux, http.MethodPost, "/documents", map[string]string{
			"filename": "c.txt", "doc_type": "invoice", "content": "not a field line",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("wrong stage is 409", func(t *testing.T) {
		t.Parallel()
		rec := doJSON(t, mux, http.MethodPost, "/documents", map[string]string{
			"filename": "a.txt", "doc_type": "invoice", "content": "total: 9\n",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		var doc model.Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

		rec = doJSON(t, mux, http.MethodPost, "/documents/"+doc.ID+"/reconcile", map[string]string{"strategy": "LOOSE"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown strategy is 400", func(t *testing.T) {
		t.Parallel()
		rec := doJSON(t, mux, http.MethodPost, "/documents", map[string]string{
			"filename": "b.txt", "doc_type": "invoice", "content": "total: 9\n",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		var doc model.Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

		rec = doJSON(t, mux, http.MethodPost, "/documents/"+doc.ID+"/fetch", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = doJSON(t, mux, http.MethodPost, "/documents/"+doc.ID+"/reconcile", map[string]string{"strategy": "SUPERLOOSE"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
