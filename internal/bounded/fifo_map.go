package bounded

import "container/list"

// FIFOMap is a keyed container that evicts the oldest-inserted key when full.
// Overwriting an existing key keeps its original insertion position.
type FIFOMap[K comparable, V any] struct {
	capacity int
	order    *list.List
	index    map[K]*list.Element
}

type fifoEntry[K comparable, V any] struct {
	key   K
	value V
}

func NewFIFOMap[K comparable, V any](capacity int) (*FIFOMap[K, V], error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	return &FIFOMap[K, V]{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[K]*list.Element, capacity),
	}, nil
}

// Put stores value under key. If inserting a new key overflows the map the
// oldest entry is evicted and returned with ok=true.
func (m *FIFOMap[K, V]) Put(key K, value V) (evictedKey K, evictedValue V, ok bool) {
	if elem, exists := m.index[key]; exists {
		elem.Value = fifoEntry[K, V]{key: key, value: value}
		return evictedKey, evictedValue, false
	}
	if m.order.Len() == m.capacity {
		oldest := m.order.Front()
		entry := oldest.Value.(fifoEntry[K, V])
		m.order.Remove(oldest)
		delete(m.index, entry.key)
		evictedKey, evictedValue, ok = entry.key, entry.value, true
	}
	m.index[key] = m.order.PushBack(fifoEntry[K, V]{key: key, value: value})
	return evictedKey, evictedValue, ok
}

func (m *FIFOMap[K, V]) Get(key K) (V, bool) {
	elem, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(fifoEntry[K, V]).value, true
}

func (m *FIFOMap[K, V]) Contains(key K) bool {
	_, ok := m.index[key]
	return ok
}

func (m *FIFOMap[K, V]) Delete(key K) bool {
	elem, ok := m.index[key]
	if !ok {
		return false
	}
	m.order.Remove(elem)
	delete(m.index, key)
	return true
}

func (m *FIFOMap[K, V]) Len() int { return m.order.Len() }

func (m *FIFOMap[K, V]) Cap() int { return m.capacity }

// Keys returns the resident keys oldest first.
func (m *FIFOMap[K, V]) Keys() []K {
	out := make([]K, 0, m.order.Len())
	for e := m.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(fifoEntry[K, V]).key)
	}
	return out
}

// Values returns the resident values oldest first.
func (m *FIFOMap[K, V]) Values() []V {
	out := make([]V, 0, m.order.Len())
	for e := m.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(fifoEntry[K, V]).value)
	}
	return out
}

// Range visits entries oldest first until fn returns false.
func (m *FIFOMap[K, V]) Range(fn func(key K, value V) bool) {
	for e := m.order.Front(); e != nil; e = e.Next() {
		entry := e.Value.(fifoEntry[K, V])
		if !fn(entry.key, entry.value) {
			return
		}
	}
}

func (m *FIFOMap[K, V]) Clear() {
	m.order.Init()
	m.index = make(map[K]*list.Element, m.capacity)
}

// Clone returns an independent copy with the same insertion order.
func (m *FIFOMap[K, V]) Clone() *FIFOMap[K, V] {
	out := &FIFOMap[K, V]{
		capacity: m.capacity,
		order:    list.New(),
		index:    make(map[K]*list.Element, m.capacity),
	}
	for e := m.order.Front(); e != nil; e = e.Next() {
		entry := e.Value.(fifoEntry[K, V])
		out.index[entry.key] = out.order.PushBack(entry)
	}
	return out
}
