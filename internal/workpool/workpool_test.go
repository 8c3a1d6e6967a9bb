package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPreservesInputOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}

	// later items finish first
	out, err := Map(context.Background(), len(items), items, func(_ context.Context, _ int, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * n, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{25, 16, 9, 4, 1}, out)
}

func TestMapRespectsWorkerLimit(t *testing.T) {
	var running, peak atomic.Int32
	items := make([]int, 16)

	_, err := Map(context.Background(), 3, items, func(_ context.Context, _ int, _ int) (struct{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return struct{}{}, nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestMapFailsWholeCallOnError(t *testing.T) {
	boom := errors.New("boom")

	out, err := Map(context.Background(), 2, []int{0, 1, 2, 3}, func(ctx context.Context, i int, _ int) (int, error) {
		if i == 2 {
			return 0, boom
		}
		return i, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "job 2")
	assert.Nil(t, out)
}

func TestMapEmptyInput(t *testing.T) {
	out, err := Map(context.Background(), 4, []string{}, func(context.Context, int, string) (string, error) {
		t.Fatal("fn must not be called")
		return "", nil
	})

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Map(ctx, 1, []int{1, 2}, func(context.Context, int, int) (int, error) {
		return 0, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
