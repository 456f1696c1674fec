package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpoJitterWithoutJitterDoubles(t *testing.T) {
	b := ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 200*time.Millisecond, b.Next(1))
	assert.Equal(t, 800*time.Millisecond, b.Next(3))
	assert.Equal(t, time.Second, b.Next(10))
	assert.Equal(t, 100*time.Millisecond, b.Next(-1))
}

func TestExpoJitterStaysInBand(t *testing.T) {
	b := ExpoJitter{Base: time.Second, Max: time.Minute, Jitter: 0.2}
	for i := 0; i < 200; i++ {
		d := b.Next(2)
		require.GreaterOrEqual(t, d, 3200*time.Millisecond)
		require.LessOrEqual(t, d, 4800*time.Millisecond)
	}
}

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	}, Policy{Name: "test_success", Attempts: 5, Backoff: ExpoJitter{}})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsBudget(t *testing.T) {
	calls, exhausted := 0, 0
	boom := errors.New("boom")
	err := Do(context.Background(), func() error {
		calls++
		return boom
	}, Policy{
		Name:      "test_exhaust",
		Attempts:  4,
		Backoff:   ExpoJitter{},
		OnExhaust: func(error) { exhausted++ },
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 1, exhausted)
}

func TestDoPermanentShortCircuits(t *testing.T) {
	calls := 0
	boom := errors.New("bad payload")
	err := Do(context.Background(), func() error {
		calls++
		return Permanent(boom)
	}, Policy{Name: "test_permanent", Attempts: 5, Backoff: ExpoJitter{}})
	require.ErrorIs(t, err, boom)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("boom")
	}, Policy{Name: "test_ctx", Attempts: 5, Backoff: ExpoJitter{Base: time.Hour}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
