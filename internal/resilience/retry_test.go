package resilience

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
		JitterFraction: 0,
	}
}

func TestDoValRecoversFromTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	val, err := DoVal(context.Background(), fastConfig(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(eris.New("upstream 503"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestDoValStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := DoVal(context.Background(), fastConfig(5), func(context.Context) (int, error) {
		calls++
		return 0, eris.New("document rejected")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValExhaustsRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	var retriesSeen []int
	cfg := fastConfig(2)
	cfg.OnRetry = func(attempt int, _ error) { retriesSeen = append(retriesSeen, attempt) }

	_, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(eris.New("still down"), 502)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // first attempt plus two retries
	assert.Equal(t, []int{1, 2}, retriesSeen)
}

func TestDoValHonorsContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastConfig(10), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(eris.New("down"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWrapsDoVal(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(1), func(context.Context) error {
		calls++
		if calls == 1 {
			return NewTransientError(eris.New("flap"), 500)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("validation failed")))
	assert.True(t, IsTransient(NewTransientError(eris.New("x"), 503)))
	assert.True(t, IsTransient(eris.Wrap(NewTransientError(eris.New("x"), 0), "outer")))
	assert.True(t, IsTransient(&net.DNSError{Err: "lookup", IsTimeout: true}))
	assert.True(t, IsTransient(eris.New("read tcp: i/o timeout")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{
		BaseBackoff:    100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2,
		JitterFraction: 0,
	}
	assert.Equal(t, 100*time.Millisecond, backoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, backoff(1, cfg))
	assert.Equal(t, 400*time.Millisecond, backoff(2, cfg))
	assert.Equal(t, time.Second, backoff(5, cfg))
}
