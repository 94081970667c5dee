// ABOUTME: Tests for the bounded queue.
// ABOUTME: Covers FIFO order, capacity errors, timeouts, close and concurrent producers.

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int](10)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Put(i))
	}

	for i := 0; i < 10; i++ {
		got, err := q.Get(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
}

func TestQueue_PutFull(t *testing.T) {
	q := New[string](2)
	require.NoError(t, q.Put("a"))
	require.NoError(t, q.Put("b"))

	assert.ErrorIs(t, q.Put("c"), ErrFull)
	assert.Equal(t, 2, q.Len())

	// Draining one slot makes room again
	_, ok := q.TryGet()
	require.True(t, ok)
	assert.NoError(t, q.Put("c"))
}

func TestQueue_MinimumCapacity(t *testing.T) {
	q := New[int](0)
	assert.Equal(t, 1, q.Cap())
}

func TestQueue_GetTimeout(t *testing.T) {
	q := New[int](1)

	start := time.Now()
	_, err := q.Get(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueue_GetWaitsForProducer(t *testing.T) {
	q := New[int](1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Put(42)
	}()

	got, err := q.Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestQueue_GetContextCancelled(t *testing.T) {
	q := New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Get(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_TryGetEmpty(t *testing.T) {
	q := New[int](1)
	_, ok := q.TryGet()
	assert.False(t, ok)
}

func TestQueue_Close(t *testing.T) {
	q := New[int](4)
	require.NoError(t, q.Put(1))
	require.NoError(t, q.Put(2))

	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Put(3), ErrClosed)

	// Queued items remain readable after close
	got, err := q.Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	got, err = q.Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	_, err = q.Get(context.Background(), 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_ConcurrentProducersKeepOwnOrder(t *testing.T) {
	const producers = 4
	const perProducer = 250

	q := New[[2]int](producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Put([2]int{p, i}))
			}
		}(p)
	}
	wg.Wait()

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	for i := 0; i < producers*perProducer; i++ {
		item, err := q.Get(context.Background(), time.Second)
		require.NoError(t, err)
		p, seq := item[0], item[1]
		assert.Greater(t, seq, last[p], "producer %d out of order", p)
		last[p] = seq
	}
	for p := range last {
		assert.Equal(t, perProducer-1, last[p])
	}
}
