package bounded

import "sort"

// PriorityQueue keeps at most capacity elements ordered by a caller supplied
// comparator. compare(a, b) < 0 means a has lower priority than b. When full,
// the lowest-priority element among the residents and the incoming one is
// evicted; among equal priorities the first-inserted element goes first.
type PriorityQueue[T any] struct {
	capacity int
	compare  func(a, b T) int
	entries  []priorityEntry[T]
	seq      uint64
}

type priorityEntry[T any] struct {
	seq   uint64
	value T
}

func NewPriorityQueue[T any](capacity int, compare func(a, b T) int) (*PriorityQueue[T], error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	if compare == nil {
		panic("bounded: nil comparator")
	}
	return &PriorityQueue[T]{
		capacity: capacity,
		compare:  compare,
		entries:  make([]priorityEntry[T], 0, capacity),
	}, nil
}

// Push inserts v. On overflow the evicted element is returned with ok=true;
// it may be v itself when v ranks lowest.
func (q *PriorityQueue[T]) Push(v T) (evicted T, ok bool) {
	q.seq++
	incoming := priorityEntry[T]{seq: q.seq, value: v}
	if len(q.entries) < q.capacity {
		q.entries = append(q.entries, incoming)
		return evicted, false
	}

	victim := q.lowest()
	if q.compare(v, q.entries[victim].value) < 0 {
		return v, true
	}
	evicted = q.entries[victim].value
	q.entries = append(q.entries[:victim], q.entries[victim+1:]...)
	q.entries = append(q.entries, incoming)
	return evicted, true
}

// lowest returns the index of the eviction candidate. Entries are kept in
// insertion order, so the first minimum found is also the oldest.
func (q *PriorityQueue[T]) lowest() int {
	idx := 0
	for i := 1; i < len(q.entries); i++ {
		if q.compare(q.entries[i].value, q.entries[idx].value) < 0 {
			idx = i
		}
	}
	return idx
}

func (q *PriorityQueue[T]) highest() int {
	idx := 0
	for i := 1; i < len(q.entries); i++ {
		if q.compare(q.entries[i].value, q.entries[idx].value) > 0 {
			idx = i
		}
	}
	return idx
}

// Peek returns the highest-priority element; ties resolve to the oldest.
func (q *PriorityQueue[T]) Peek() (T, bool) {
	if len(q.entries) == 0 {
		var zero T
		return zero, false
	}
	return q.entries[q.highest()].value, true
}

// Pop removes and returns the highest-priority element.
func (q *PriorityQueue[T]) Pop() (T, bool) {
	if len(q.entries) == 0 {
		var zero T
		return zero, false
	}
	idx := q.highest()
	v := q.entries[idx].value
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	return v, true
}

// RemoveFunc drops every element for which fn returns true and reports how
// many were removed.
func (q *PriorityQueue[T]) RemoveFunc(fn func(T) bool) int {
	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if fn(e.value) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	var zero priorityEntry[T]
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = zero
	}
	q.entries = kept
	return removed
}

func (q *PriorityQueue[T]) Len() int { return len(q.entries) }

func (q *PriorityQueue[T]) Cap() int { return q.capacity }

// Items returns the residents in insertion order.
func (q *PriorityQueue[T]) Items() []T {
	out := make([]T, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.value)
	}
	return out
}

// Sorted returns the residents from highest to lowest priority, oldest first
// among equals.
func (q *PriorityQueue[T]) Sorted() []T {
	entries := append([]priorityEntry[T](nil), q.entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return q.compare(entries[i].value, entries[j].value) > 0
	})
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.value)
	}
	return out
}

func (q *PriorityQueue[T]) Clear() {
	var zero priorityEntry[T]
	for i := range q.entries {
		q.entries[i] = zero
	}
	q.entries = q.entries[:0]
}

// Clone returns an independent copy. Element values are copied shallowly.
func (q *PriorityQueue[T]) Clone() *PriorityQueue[T] {
	entries := make([]priorityEntry[T], len(q.entries), q.capacity)
	copy(entries, q.entries)
	return &PriorityQueue[T]{
		capacity: q.capacity,
		compare:  q.compare,
		entries:  entries,
		seq:      q.seq,
	}
}
