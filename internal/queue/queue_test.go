package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -40} {
		q, err := New[int](capacity)
		assert.Nil(t, q)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	}
}

func TestFIFO(t *testing.T) {
	q, err := New[int](5)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.True(t, q.TryPush(i))
	}
	for i := 0; i < 5; i++ {
		item, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, item)
	}

	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestTryPushFullQueue(t *testing.T) {
	q, err := New[string](2)
	require.NoError(t, err)

	assert.True(t, q.TryPush("a"))
	assert.True(t, q.TryPush("b"))
	assert.False(t, q.TryPush("c"))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Cap())
	assert.Equal(t, int64(2), q.Pushed())
	assert.Equal(t, int64(1), q.Rejected())

	item, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "a", item)
	assert.True(t, q.TryPush("c"))
}

func TestItemsChannel(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)

	require.True(t, q.TryPush(7))
	assert.Equal(t, 7, <-q.Items())
	assert.Equal(t, 0, q.Len())
}

func TestConcurrentProducersNeverExceedCapacity(t *testing.T) {
	const capacity = 10
	q, err := New[int](capacity)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.TryPush(i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, q.Len())
	assert.Equal(t, int64(capacity), q.Pushed())
	assert.Equal(t, int64(100-capacity), q.Rejected())
}
