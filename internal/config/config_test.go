package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.InDelta(t, 0.7, cfg.Pipeline.ConfidenceThreshold, 1e-9)
	assert.False(t, cfg.Pipeline.AutoDecision)
	assert.InDelta(t, 0.95, cfg.Pipeline.AutoApproveThreshold, 1e-9)
	assert.Equal(t, 30, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 2, cfg.Fetch.MaxRetries)
	assert.Equal(t, "targets.yaml", cfg.Fetch.TargetsFile)
	assert.InDelta(t, 0.85, cfg.Reconcile.FuzzyThreshold, 1e-9)
	assert.Equal(t, 0, cfg.Reconcile.DateToleranceDays)
	assert.Equal(t, "text", cfg.Extract.Provider)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DOCPIPE_STORE_DRIVER", "postgres")
	t.Setenv("DOCPIPE_RECONCILE_FUZZY_THRESHOLD", "0.9")
	t.Setenv("DOCPIPE_FETCH_TIMEOUT_SECS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.InDelta(t, 0.9, cfg.Reconcile.FuzzyThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Fetch.TimeoutSecs)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level", Format: "json"}))
}
