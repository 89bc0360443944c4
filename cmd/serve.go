package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docpipe/internal/model"
	"github.com/sells-group/docpipe/internal/pipeline"
	"github.com/sells-group/docpipe/internal/reconcile"
	"github.com/sells-group/docpipe/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pipeline HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := newMux(env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newMux(env *pipelineEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /documents", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Filename string `json:"filename"`
			DocType  string `json:"doc_type"`
			Content  string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		doc, err := env.Coordinator.Ingest(r.Context(), req.Filename, req.DocType, []byte(req.Content))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	})

	mux.HandleFunc("GET /documents", func(w http.ResponseWriter, r *http.Request) {
		var stage model.Stage
		if s := r.URL.Query().Get("stage"); s != "" {
			parsed, err := model.ParseStage(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			stage = parsed
		}
		docs, err := env.Coordinator.ListDocuments(r.Context(), stage, 200)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		if docs == nil {
			docs = []model.Document{}
		}
		writeJSON(w, http.StatusOK, docs)
	})

	mux.HandleFunc("GET /documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		doc, err := env.Coordinator.GetDocument(r.Context(), r.PathValue("id"))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("POST /documents/{id}/corrections", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reviewer    string             `json:"reviewer"`
			Corrections []model.Correction `json:"corrections"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		doc, err := env.Coordinator.SubmitCorrection(r.Context(), r.PathValue("id"), req.Reviewer, req.Corrections)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("POST /documents/{id}/fetch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Targets []string `json:"targets"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		outcome, err := env.Coordinator.StartFetch(r.Context(), r.PathValue("id"), req.Targets)
		var failed *pipeline.FetchFailedError
		if errors.As(err, &failed) {
			writeJSON(w, http.StatusBadGateway, failed.Outcome)
			return
		}
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	})

	mux.HandleFunc("POST /documents/{id}/reconcile", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Strategy string `json:"strategy"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		result, err := env.Coordinator.Reconcile(r.Context(), r.PathValue("id"), req.Strategy)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /documents/{id}/finalize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Decision string `json:"decision"`
			Decider  string `json:"decider"`
			Notes    string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		d, err := env.Coordinator.Finalize(r.Context(), r.PathValue("id"), req.Decision, req.Decider, req.Notes)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	})

	mux.HandleFunc("GET /documents/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		rep, err := env.Coordinator.Report(r.Context(), r.PathValue("id"))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	mux.HandleFunc("GET /documents/{id}/audit", func(w http.ResponseWriter, r *http.Request) {
		entries, err := env.Coordinator.Audit(r.Context(), r.PathValue("id"))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		if entries == nil {
			entries = []model.AuditEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	return mux
}

// writePipelineError maps coordinator errors onto HTTP statuses.
func writePipelineError(w http.ResponseWriter, err error) {
	var (
		validation *pipeline.ValidationError
		transition *pipeline.StateTransitionError
		strategy   *reconcile.StrategyError
		extraction *pipeline.ExtractionError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.As(err, &validation), errors.As(err, &strategy):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &extraction):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrStageConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
