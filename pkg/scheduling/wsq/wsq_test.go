package wsq

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(n int) []*int {
	out := make([]*int, n)
	for i := range out {
		v := i
		out[i] = &v
	}
	return out
}

func TestNewRoundsCapacity(t *testing.T) {
	assert.Equal(t, int64(DefaultCapacity), New[int](0).Capacity())
	assert.Equal(t, int64(8), New[int](5).Capacity())
	assert.Equal(t, int64(1), New[int](1).Capacity())
}

func TestOwnerIsLIFO(t *testing.T) {
	q := New[int](4)
	for _, v := range items(3) {
		q.Push(v)
	}
	require.Equal(t, int64(3), q.Size())

	for want := 2; want >= 0; want-- {
		got := q.Pop()
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	}
	assert.Nil(t, q.Pop())
	assert.True(t, q.Empty())
}

func TestThiefIsFIFO(t *testing.T) {
	q := New[int](4)
	for _, v := range items(3) {
		q.Push(v)
	}
	for want := 0; want < 3; want++ {
		got := q.Steal()
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	}
	assert.Nil(t, q.Steal())
}

func TestGrowKeepsOrder(t *testing.T) {
	q := New[int](2)
	vs := items(100)
	for _, v := range vs {
		q.Push(v)
	}
	assert.GreaterOrEqual(t, q.Capacity(), int64(100))
	assert.Equal(t, int64(100), q.Size())

	assert.Equal(t, 0, *q.Steal())
	assert.Equal(t, 99, *q.Pop())
	assert.Equal(t, int64(98), q.Size())
}

func TestPopAfterEmptyRestoresBottom(t *testing.T) {
	q := New[int](4)
	assert.Nil(t, q.Pop())
	assert.Nil(t, q.Pop())
	q.Push(items(1)[0])
	assert.Equal(t, int64(1), q.Size())
	assert.NotNil(t, q.Pop())
}

// Every pushed element must be consumed exactly once across the owner and
// concurrent thieves.
func TestConcurrentStealExactlyOnce(t *testing.T) {
	const (
		total   = 100000
		thieves = 4
	)

	q := New[int](16)
	vs := items(total)
	seen := make([]atomic.Int32, total)
	var consumed atomic.Int64

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < thieves; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if v := q.Steal(); v != nil {
					seen[*v].Add(1)
					consumed.Add(1)
					continue
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	for i, v := range vs {
		q.Push(v)
		if i%3 == 0 {
			if p := q.Pop(); p != nil {
				seen[*p].Add(1)
				consumed.Add(1)
			}
		}
	}
	for {
		p := q.Pop()
		if p == nil {
			if q.Empty() {
				break
			}
			continue
		}
		seen[*p].Add(1)
		consumed.Add(1)
	}
	for consumed.Load() < total {
	}
	close(done)
	wg.Wait()

	require.Equal(t, int64(total), consumed.Load())
	for i := range seen {
		if n := seen[i].Load(); n != 1 {
			t.Fatalf("element %d consumed %d times", i, n)
		}
	}
}

func BenchmarkPushPop(b *testing.B) {
	q := New[int](DefaultCapacity)
	v := items(1)[0]
	for i := 0; i < b.N; i++ {
		q.Push(v)
		q.Pop()
	}
}
