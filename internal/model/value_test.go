package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	t.Parallel()

	t.Run("ISO date string becomes a date", func(t *testing.T) {
		t.Parallel()
		v, err := FromAny("2026-01-15")
		require.NoError(t, err)
		assert.Equal(t, KindDate, v.Kind)
		assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), v.Date)
	})

	t.Run("plain string stays a string", func(t *testing.T) {
		t.Parallel()
		v, err := FromAny("Acme Corp")
		require.NoError(t, err)
		assert.Equal(t, KindString, v.Kind)
		assert.Equal(t, "Acme Corp", v.Str)
	})

	t.Run("JSON number becomes a number", func(t *testing.T) {
		t.Parallel()
		v, err := FromAny(1250.5)
		require.NoError(t, err)
		assert.Equal(t, KindNumber, v.Kind)
		assert.Equal(t, 1250.5, v.Num)
	})

	t.Run("bool and list convert", func(t *testing.T) {
		t.Parallel()
		v, err := FromAny(true)
		require.NoError(t, err)
		assert.Equal(t, KindBool, v.Kind)

		lv, err := FromAny([]any{"a", 2.0})
		require.NoError(t, err)
		require.Equal(t, KindList, lv.Kind)
		require.Len(t, lv.List, 2)
		assert.Equal(t, KindString, lv.List[0].Kind)
		assert.Equal(t, KindNumber, lv.List[1].Kind)
	})

	t.Run("null is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := FromAny(nil)
		assert.Error(t, err)
	})

	t.Run("unsupported type is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := FromAny(map[string]any{"nested": 1})
		assert.Error(t, err)
	})
}

func TestValueJSONRoundTrip(t *testing.T) {
	t.Parallel()

	orig := List(String("a"), Number(2), Date(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), Bool(true))
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Value
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig, decoded)
}

func TestValueUnmarshalUnknownKind(t *testing.T) {
	t.Parallel()

	var v Value
	err := json.Unmarshal([]byte(`{"kind":"blob","value":"x"}`), &v)
	assert.Error(t, err)
}

func TestAggregateOf(t *testing.T) {
	t.Parallel()

	ok := FetchResult{Status: FetchSuccess}
	bad := FetchResult{Status: FetchError}

	assert.Equal(t, FetchComplete, AggregateOf([]FetchResult{ok, ok}))
	assert.Equal(t, FetchPartial, AggregateOf([]FetchResult{ok, bad}))
	assert.Equal(t, FetchFailed, AggregateOf([]FetchResult{bad, bad}))
	assert.Equal(t, FetchFailed, AggregateOf(nil))
}

func TestFetchResultLatencyJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(FetchResult{Target: "registry", Status: FetchSuccess, LatencyMS: 42})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"latency_ms":42`)
}

func TestStageTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StageApproved.Terminal())
	assert.True(t, StageRejected.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageIngested.Terminal())
	assert.False(t, StageFinalReview.Terminal())
}
