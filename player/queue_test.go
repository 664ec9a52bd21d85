package player

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string) QueueItem {
	return QueueItem{ID: id, URL: "https://www.youtube.com/watch?v=" + id, By: "tester"}
}

func ids(items []QueueItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

type changeRecorder struct {
	mu        sync.Mutex
	snapshots [][]QueueItem
}

func (r *changeRecorder) record(items []QueueItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, items)
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func TestQueueEnqueuePop(t *testing.T) {
	rec := &changeRecorder{}
	q := NewQueue(rec.record)

	q.Enqueue(item("a"), item("b"))
	q.Enqueue(item("c"))
	assert.Equal(t, 3, q.Size())
	assert.Equal(t, 2, rec.count())

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, []string{"b", "c"}, ids(q.Items()))

	q.Pop()
	q.Pop()
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Size())
}

func TestQueueStaysContiguous(t *testing.T) {
	q := NewQueue(nil)
	q.Enqueue(item("a"), item("b"), item("c"), item("d"), item("e"))

	require.NoError(t, q.Move(4, 0))
	require.NoError(t, q.Remove(2))
	q.Pop()

	items := q.Items()
	assert.Equal(t, q.Size(), len(items))
	for i := 0; i < len(items); i++ {
		got, ok := q.Get(i)
		require.True(t, ok)
		assert.Equal(t, items[i], got)
	}
}

func TestQueueMove(t *testing.T) {
	q := NewQueue(nil)
	q.Enqueue(item("a"), item("b"), item("c"), item("d"))

	require.NoError(t, q.Move(2, 0))
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(q.Items()))

	require.NoError(t, q.Move(0, 3))
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids(q.Items()))
}

func TestQueueMoveOutOfBounds(t *testing.T) {
	q := NewQueue(nil)
	q.Enqueue(item("a"), item("b"))
	before := ids(q.Items())

	for _, c := range [][2]int{{-1, 0}, {0, -1}, {2, 0}, {0, 2}, {5, 5}} {
		err := q.Move(c[0], c[1])
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrOutOfBounds))
		assert.Equal(t, before, ids(q.Items()), "queue must be unchanged after a bad move")
	}
}

func TestQueueRemoveOutOfBounds(t *testing.T) {
	q := NewQueue(nil)
	q.Enqueue(item("a"))
	assert.ErrorIs(t, q.Remove(1), ErrOutOfBounds)
	assert.ErrorIs(t, q.Remove(-1), ErrOutOfBounds)
	assert.Equal(t, 1, q.Size())
}

func TestQueueClearVariants(t *testing.T) {
	newFull := func() *Queue {
		q := NewQueue(nil)
		q.Enqueue(item("a"), item("b"), item("c"), item("d"), item("e"), item("f"))
		return q
	}
	intp := func(v int) *int { return &v }

	q := newFull()
	q.Clear(nil, nil)
	assert.Equal(t, 0, q.Size())

	q = newFull()
	q.Clear(intp(3), nil)
	assert.Equal(t, []string{"a", "b", "c"}, ids(q.Items()))

	// inclusive range: drops positions 1..3 (0-based)
	q = newFull()
	q.Clear(intp(1), intp(3))
	assert.Equal(t, []string{"a", "e", "f"}, ids(q.Items()))
}

func TestQueueShuffleIsPermutation(t *testing.T) {
	rec := &changeRecorder{}
	q := NewQueue(rec.record)
	q.Enqueue(item("a"), item("b"), item("c"), item("d"), item("e"))
	before := rec.count()

	q.Shuffle()

	assert.Equal(t, before+1, rec.count(), "shuffle fires exactly one change notification")
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, ids(q.Items()))
	assert.Equal(t, 5, q.Size())
}

func TestQueueOneNotificationPerMutation(t *testing.T) {
	rec := &changeRecorder{}
	q := NewQueue(rec.record)

	q.Enqueue(item("a"), item("b"), item("c"))
	q.Pop()
	require.NoError(t, q.Move(0, 1))
	require.NoError(t, q.Remove(0))
	q.Clear(nil, nil)

	assert.Equal(t, 5, rec.count())
	// the final notification carries the resulting (empty) sequence
	assert.Empty(t, rec.snapshots[len(rec.snapshots)-1])
}
