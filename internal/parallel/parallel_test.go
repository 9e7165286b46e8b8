package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForErr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.NumWorkers = 4

	var counter int64
	seen := make([]int32, 1000)
	err := ForErr(context.Background(), len(seen), func(_ context.Context, i int) error {
		atomic.AddInt64(&counter, 1)
		atomic.AddInt32(&seen[i], 1)
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, int64(len(seen)), counter)
	for i, v := range seen {
		assert.Equal(t, int32(1), v, "index %d visited %d times", i, v)
	}
}

func TestForErr_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var order []int
	err := ForErr(context.Background(), 5, func(_ context.Context, i int) error {
		order = append(order, i)
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestForErr_PropagatesError(t *testing.T) {
	boom := errors.New("boom")

	for _, cfg := range []Config{
		{Enabled: false},
		{Enabled: true, NumWorkers: 4, MinChunkSize: 1},
	} {
		err := ForErr(context.Background(), 100, func(_ context.Context, i int) error {
			if i == 42 {
				return boom
			}
			return nil
		}, cfg)
		assert.ErrorIs(t, err, boom)
	}
}

func TestForErr_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int64
	err := ForErr(ctx, 10, func(_ context.Context, _ int) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}, Config{Enabled: false})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestForErr_Empty(t *testing.T) {
	err := ForErr(context.Background(), 0, func(_ context.Context, _ int) error {
		t.Fatal("should not be called")
		return nil
	}, DefaultConfig())
	assert.NoError(t, err)
}
