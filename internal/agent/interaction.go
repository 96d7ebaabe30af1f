package agent

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"situsim/internal/bounded"
	"situsim/internal/knowledge"
	"situsim/internal/logging"
	"situsim/internal/model"
	"situsim/internal/perception"
)

// Postman receives an agent's dispatched outbox. Delivery to recipients
// happens later, when the coordinator commits the cycle.
type Postman interface {
	Post(from int, batch []model.AgentMessage)
}

type Inbox interface {
	GetMessageFromInbox() (model.AgentMessage, bool)
}

type Outbox interface {
	SendMessage(msg model.AgentMessage)
}

// Interaction couples perception to knowledge and owns the message queues.
type Interaction interface {
	Inbox
	Outbox
	Perceive(k *knowledge.Module, cell model.CellState)
	Deliver(msg model.AgentMessage)
	DispatchMessages(k *knowledge.Module) int
	DiscardOutbox()
	SetPostman(p Postman)
	// Checkpoint saves both mailboxes; Rollback restores the last save.
	Checkpoint()
	Rollback()
}

type InteractionModule struct {
	perception *perception.Module
	logger     *slog.Logger

	mu      sync.Mutex
	inbox   *bounded.FIFOQueue[model.AgentMessage]
	outbox  *bounded.FIFOQueue[model.AgentMessage]
	postman Postman

	savedInbox  *bounded.FIFOQueue[model.AgentMessage]
	savedOutbox *bounded.FIFOQueue[model.AgentMessage]
}

func NewInteractionModule(p *perception.Module, inboxCapacity, outboxCapacity int, logger *slog.Logger) (*InteractionModule, error) {
	inbox, err := bounded.NewFIFOQueue[model.AgentMessage](inboxCapacity)
	if err != nil {
		return nil, err
	}
	outbox, err := bounded.NewFIFOQueue[model.AgentMessage](outboxCapacity)
	if err != nil {
		return nil, err
	}
	return &InteractionModule{
		perception: p,
		logger:     logging.OrDiscard(logger),
		inbox:      inbox,
		outbox:     outbox,
	}, nil
}

func (i *InteractionModule) SetPostman(p Postman) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.postman = p
}

// Perceive arms the sensors for the agent's capabilities, scans the cell and
// records detections and fused beliefs into knowledge.
func (i *InteractionModule) Perceive(k *knowledge.Module, cell model.CellState) {
	self := k.Self()
	i.perception.PrepareSensors(self)
	i.perception.Perceive(self, cell)
	for _, a := range i.perception.PerceivedAgents() {
		k.AddPerceivedAgent(a)
	}
	for _, o := range i.perception.PerceivedObjects() {
		k.AddPerceivedObject(o)
	}
	for _, crd := range i.perception.CombinePerceptions(k.Lookup()) {
		k.AddCombinedPerception(crd)
	}
	k.SetCollisions(cell.Collisions(self.ID))
}

// SendMessage queues msg until DispatchMessages runs.
func (i *InteractionModule) SendMessage(msg model.AgentMessage) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if dropped, ok := i.outbox.Push(msg); ok {
		i.logger.Debug("outbox full, dropped oldest message", "message", dropped.ID, "from", dropped.From)
	}
}

func (i *InteractionModule) GetMessageFromInbox() (model.AgentMessage, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inbox.Pop()
}

func (i *InteractionModule) Deliver(msg model.AgentMessage) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if dropped, ok := i.inbox.Push(msg); ok {
		i.logger.Debug("inbox full, dropped oldest message", "message", dropped.ID, "to", dropped.To)
	}
}

// DispatchMessages hands the whole outbox to the postman as one batch,
// stamped with the sender and the current cycle.
func (i *InteractionModule) DispatchMessages(k *knowledge.Module) int {
	i.mu.Lock()
	batch := i.outbox.Drain()
	postman := i.postman
	i.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	for idx := range batch {
		batch[idx].From = k.ID()
		batch[idx].SentAt = k.Time()
	}
	if postman == nil {
		i.logger.Warn("no postman attached, messages discarded", "agent", k.ID(), "count", len(batch))
		return 0
	}
	postman.Post(k.ID(), batch)
	return len(batch)
}

func (i *InteractionModule) DiscardOutbox() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.outbox.Clear()
}

func (i *InteractionModule) Checkpoint() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.savedInbox = i.inbox.Clone()
	i.savedOutbox = i.outbox.Clone()
}

// Rollback restores the mailboxes to the last checkpoint. Messages delivered
// since then are lost with it; delivery only happens after a commit, which
// is always followed by a new checkpoint.
func (i *InteractionModule) Rollback() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.savedInbox == nil {
		return
	}
	*i.inbox = *i.savedInbox.Clone()
	*i.outbox = *i.savedOutbox.Clone()
}
