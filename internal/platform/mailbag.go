package platform

import (
	"sort"
	"sync"

	"situsim/internal/model"
)

// mailbag collects dispatched batches during DECIDING. Nothing is delivered
// until the coordinator drains it at commit.
type mailbag struct {
	mu      sync.Mutex
	batches map[int][]model.AgentMessage
}

func newMailbag() *mailbag {
	return &mailbag{batches: make(map[int][]model.AgentMessage)}
}

func (m *mailbag) Post(from int, batch []model.AgentMessage) {
	if len(batch) == 0 {
		return
	}
	m.mu.Lock()
	m.batches[from] = append(m.batches[from], batch...)
	m.mu.Unlock()
}

// drain empties the bag and returns the senders in ascending id order with
// their messages in dispatch order.
func (m *mailbag) drain() ([]int, map[int][]model.AgentMessage) {
	m.mu.Lock()
	batches := m.batches
	m.batches = make(map[int][]model.AgentMessage)
	m.mu.Unlock()

	senders := make([]int, 0, len(batches))
	for from := range batches {
		senders = append(senders, from)
	}
	sort.Ints(senders)
	return senders, batches
}

func (m *mailbag) discard() {
	m.mu.Lock()
	m.batches = make(map[int][]model.AgentMessage)
	m.mu.Unlock()
}
