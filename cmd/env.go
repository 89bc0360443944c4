package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docpipe/internal/extract"
	"github.com/sells-group/docpipe/internal/fetch"
	"github.com/sells-group/docpipe/internal/pipeline"
	"github.com/sells-group/docpipe/internal/reconcile"
	"github.com/sells-group/docpipe/internal/resilience"
	"github.com/sells-group/docpipe/internal/store"
	anthropicpkg "github.com/sells-group/docpipe/pkg/anthropic"
)

// pipelineEnv holds the initialized store and coordinator used by the
// stage commands and the server.
type pipelineEnv struct {
	Store       store.Store
	Coordinator *pipeline.Coordinator
	Targets     []string
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "docpipe.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initExtractor() (extract.Extractor, error) {
	switch cfg.Extract.Provider {
	case "text":
		return extract.NewTextExtractor(cfg.Extract.Confidence), nil
	case "anthropic":
		if cfg.Extract.AnthropicKey == "" {
			return nil, eris.New("anthropic API key is required (DOCPIPE_EXTRACT_ANTHROPIC_KEY)")
		}
		client := anthropicpkg.NewClient(cfg.Extract.AnthropicKey)
		return extract.NewAnthropicExtractor(client, cfg.Extract.Model, cfg.Extract.MaxTokens), nil
	default:
		return nil, eris.Errorf("unsupported extract provider: %s", cfg.Extract.Provider)
	}
}

// initEnv sets up the store, target registry, extractor, and coordinator.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	tf, err := fetch.LoadTargets(cfg.Fetch.TargetsFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	registry, err := fetch.BuildRegistry(tf)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("targets loaded",
		zap.String("file", cfg.Fetch.TargetsFile),
		zap.Strings("targets", registry.Names()))

	extractor, err := initExtractor()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxRetries = cfg.Fetch.MaxRetries
	retry.BaseBackoff = time.Duration(cfg.Fetch.BackoffMs) * time.Millisecond

	orch := fetch.NewOrchestrator(registry, fetch.Options{
		Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Retry:   retry,
	})

	engine := reconcile.NewEngine(reconcile.Options{
		FuzzyThreshold:    cfg.Reconcile.FuzzyThreshold,
		NumericTolerance:  cfg.Reconcile.NumericTolerance,
		DateToleranceDays: cfg.Reconcile.DateToleranceDays,
		Weights:           tf.Weights,
	})

	coord := pipeline.New(st, extractor, orch, engine, registry.Names(), cfg.Pipeline)

	return &pipelineEnv{
		Store:       st,
		Coordinator: coord,
		Targets:     registry.Names(),
	}, nil
}
