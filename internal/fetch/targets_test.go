package fetch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docpipe/internal/model"
)

const testTargetsYAML = `
targets:
  - name: vendor-api
    type: http
    url: https://comparator.example.com/lookup
    rate_per_sec: 2
    headers:
      X-Api-Key: secret
  - name: registry
    type: static
    payload:
      vendor_name: Acme Corp
      total: 1250.5
      registered: true
weights:
  total: 3
  vendor_name: 2
`

func writeTargets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTargets(t *testing.T) {
	t.Parallel()

	tf, err := LoadTargets(writeTargets(t, testTargetsYAML))
	require.NoError(t, err)
	require.Len(t, tf.Targets, 2)

	assert.Equal(t, "vendor-api", tf.Targets[0].Name)
	assert.Equal(t, "http", tf.Targets[0].Type)
	assert.Equal(t, float64(2), tf.Targets[0].RatePerSec)
	assert.Equal(t, "secret", tf.Targets[0].Headers["X-Api-Key"])

	assert.Equal(t, "static", tf.Targets[1].Type)
	assert.Equal(t, float64(3), tf.Weights["total"])
}

func TestLoadTargetsValidation(t *testing.T) {
	t.Parallel()

	t.Run("missing name", func(t *testing.T) {
		t.Parallel()
		_, err := LoadTargets(writeTargets(t, "targets:\n  - type: static\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no name")
	})

	t.Run("http without url", func(t *testing.T) {
		t.Parallel()
		_, err := LoadTargets(writeTargets(t, "targets:\n  - name: a\n    type: http\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no url")
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		_, err := LoadTargets(writeTargets(t, "targets:\n  - name: a\n    type: ftp\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown type")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadTargets(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	tf, err := LoadTargets(writeTargets(t, testTargetsYAML))
	require.NoError(t, err)

	reg, err := BuildRegistry(tf)
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor-api", "registry"}, reg.Names())

	conn, err := reg.Get("registry")
	require.NoError(t, err)

	payload, err := conn.Fetch(t.Context(), &model.Document{ID: "d"}, model.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, model.KindString, payload["vendor_name"].Kind)
	assert.Equal(t, 1250.5, payload["total"].Num)
	assert.True(t, payload["registered"].Bool)

	_, err = reg.Get("ghost")
	assert.Error(t, err)
}
