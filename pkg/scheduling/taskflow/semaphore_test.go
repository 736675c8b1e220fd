package taskflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreParksAndWakes(t *testing.T) {
	s := NewSemaphore(1)
	assert.Equal(t, 1, s.Max())

	a := newNode(nil, "a", KindStatic, nil)
	b := newNode(nil, "b", KindStatic, nil)
	a.acquire = []*Semaphore{s}
	b.acquire = []*Semaphore{s}

	ok, woken := acquireAll(a)
	assert.True(t, ok)
	assert.Empty(t, woken)
	assert.Equal(t, 0, s.Count())

	ok, _ = acquireAll(b)
	assert.False(t, ok)

	a.release = []*Semaphore{s}
	woken = releaseAll(a)
	require.Len(t, woken, 1)
	assert.Same(t, b, woken[0])
	assert.Equal(t, 1, s.Count())

	assert.Panics(t, func() { s.release() }, "release without a matching acquire")
	assert.Equal(t, 1, s.Count())

	assert.Panics(t, func() { NewSemaphore(0) })
}

func TestAcquireAllRollsBack(t *testing.T) {
	free := NewSemaphore(1)
	held := NewSemaphore(1)
	require.True(t, held.tryAcquire(nil))

	n := newNode(nil, "n", KindStatic, nil)
	n.acquire = []*Semaphore{free, held}

	ok, _ := acquireAll(n)
	assert.False(t, ok)
	assert.Equal(t, 1, free.Count(), "partial acquisition must be undone")
}

func TestSemaphoreWithTwoUnits(t *testing.T) {
	e := newTestExecutor(t, 4)
	g := NewGraph("pairs")
	limit := NewSemaphore(2)

	var mu sync.Mutex
	var active, peak int
	for i := 0; i < 12; i++ {
		g.AddTask("work", func(context.Context) error {
			mu.Lock()
			active++
			peak = max(peak, active)
			mu.Unlock()
			time.Sleep(100 * time.Microsecond)
			mu.Lock()
			active--
			mu.Unlock()
			return nil
		}).Acquire(limit).Release(limit)
	}

	require.NoError(t, runAndWait(t, e, g))
	assert.LessOrEqual(t, peak, 2)
	assert.Equal(t, 2, limit.Count())
}
