package bounded

// FIFOQueue is a ring buffer that evicts its oldest element when full.
type FIFOQueue[T any] struct {
	items []T
	head  int
	size  int
}

func NewFIFOQueue[T any](capacity int) (*FIFOQueue[T], error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	return &FIFOQueue[T]{items: make([]T, capacity)}, nil
}

// Push appends v. When the queue is full the oldest element is evicted and
// returned with ok=true.
func (q *FIFOQueue[T]) Push(v T) (evicted T, ok bool) {
	if q.size == len(q.items) {
		evicted = q.items[q.head]
		q.items[q.head] = v
		q.head = (q.head + 1) % len(q.items)
		return evicted, true
	}
	q.items[(q.head+q.size)%len(q.items)] = v
	q.size++
	return evicted, false
}

func (q *FIFOQueue[T]) Pop() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return v, true
}

func (q *FIFOQueue[T]) Peek() (T, bool) {
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

func (q *FIFOQueue[T]) Len() int { return q.size }

func (q *FIFOQueue[T]) Cap() int { return len(q.items) }

// Items returns the resident elements oldest first.
func (q *FIFOQueue[T]) Items() []T {
	out := make([]T, 0, q.size)
	for i := 0; i < q.size; i++ {
		out = append(out, q.items[(q.head+i)%len(q.items)])
	}
	return out
}

// Drain removes and returns every resident element oldest first.
func (q *FIFOQueue[T]) Drain() []T {
	out := q.Items()
	q.Clear()
	return out
}

func (q *FIFOQueue[T]) Clear() {
	var zero T
	for i := range q.items {
		q.items[i] = zero
	}
	q.head = 0
	q.size = 0
}

// Clone returns an independent copy. Element values are copied shallowly.
func (q *FIFOQueue[T]) Clone() *FIFOQueue[T] {
	items := make([]T, len(q.items))
	copy(items, q.items)
	return &FIFOQueue[T]{items: items, head: q.head, size: q.size}
}
