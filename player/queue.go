// this file implements the ordered playback queue
package player

import (
	"errors"
	"math/rand"
	"sync"
)

// ErrOutOfBounds is returned for positional operations outside the queue.
var ErrOutOfBounds = errors.New("out of bounds")

// QueueItem is one requested song. Items are immutable; their position is
// just their index in the queue.
type QueueItem struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	By         string `json:"by"`
	ByNickname string `json:"byNickname,omitempty"`
}

// Queue is an ordered sequence of items. Every mutation leaves the
// sequence contiguous and fires the change callback exactly once with the
// resulting contents. Safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	items    []QueueItem
	onChange func([]QueueItem)
}

func NewQueue(onChange func([]QueueItem)) *Queue {
	return &Queue{onChange: onChange}
}

func (q *Queue) notify(snapshot []QueueItem) {
	if q.onChange != nil {
		q.onChange(snapshot)
	}
}

func (q *Queue) snapshotLocked() []QueueItem {
	snapshot := make([]QueueItem, len(q.items))
	copy(snapshot, q.items)
	return snapshot
}

func (q *Queue) Enqueue(items ...QueueItem) {
	q.mu.Lock()
	q.items = append(q.items, items...)
	snapshot := q.snapshotLocked()
	q.mu.Unlock()
	q.notify(snapshot)
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (QueueItem, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return QueueItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	snapshot := q.snapshotLocked()
	q.mu.Unlock()
	q.notify(snapshot)
	return item, true
}

func (q *Queue) Get(idx int) (QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx < 0 || idx >= len(q.items) {
		return QueueItem{}, false
	}
	return q.items[idx], true
}

// Slice returns a copy of items in [start, end). Bounds are clamped.
func (q *Queue) Slice(start, end int) []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if start < 0 {
		start = 0
	}
	if end > len(q.items) {
		end = len(q.items)
	}
	if start >= end {
		return nil
	}
	out := make([]QueueItem, end-start)
	copy(out, q.items[start:end])
	return out
}

func (q *Queue) Items() []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Move takes the item at fromIdx out and reinserts it at toIdx. Indices
// are 0-based; anything outside the queue is an error and leaves the
// queue untouched.
func (q *Queue) Move(fromIdx, toIdx int) error {
	q.mu.Lock()
	if fromIdx < 0 || toIdx < 0 || fromIdx >= len(q.items) || toIdx >= len(q.items) {
		q.mu.Unlock()
		return ErrOutOfBounds
	}
	item := q.items[fromIdx]
	q.items = append(q.items[:fromIdx], q.items[fromIdx+1:]...)
	q.items = append(q.items[:toIdx], append([]QueueItem{item}, q.items[toIdx:]...)...)
	snapshot := q.snapshotLocked()
	q.mu.Unlock()
	q.notify(snapshot)
	return nil
}

func (q *Queue) Remove(idx int) error {
	q.mu.Lock()
	if idx < 0 || idx >= len(q.items) {
		q.mu.Unlock()
		return ErrOutOfBounds
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	snapshot := q.snapshotLocked()
	q.mu.Unlock()
	q.notify(snapshot)
	return nil
}

// Clear drops items. With no bounds it empties the queue; with only start
// it drops from start to the end; with both it drops the inclusive range
// [start, end]. Indices are 0-based.
func (q *Queue) Clear(start, end *int) {
	q.mu.Lock()
	switch {
	case start == nil:
		q.items = nil
	case end == nil:
		if *start < len(q.items) && *start >= 0 {
			q.items = q.items[:*start]
		}
	default:
		s, e := *start, *end
		if s < 0 {
			s = 0
		}
		if e >= len(q.items) {
			e = len(q.items) - 1
		}
		if s <= e {
			q.items = append(q.items[:s], q.items[e+1:]...)
		}
	}
	snapshot := q.snapshotLocked()
	q.mu.Unlock()
	q.notify(snapshot)
}

// Shuffle applies a uniform Fisher-Yates permutation in place.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	for i := len(q.items) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		q.items[i], q.items[j] = q.items[j], q.items[i]
	}
	snapshot := q.snapshotLocked()
	q.mu.Unlock()
	q.notify(snapshot)
}
