// Package knowledge is an agent's belief store: its own state, what it
// perceived this cycle, the event knowledge it reasons with, and its goals.
package knowledge

import (
	"fmt"

	"situsim/internal/bounded"
	"situsim/internal/evidence"
	"situsim/internal/model"
)

// Capacities caps every collection the module keeps, so memory stays bounded
// regardless of run length.
type Capacities struct {
	EventKnowledge   int `json:"event_knowledge" yaml:"event_knowledge"`
	PerceivedAgents  int `json:"perceived_agents" yaml:"perceived_agents"`
	PerceivedObjects int `json:"perceived_objects" yaml:"perceived_objects"`
	EventsPerCycle   int `json:"events_per_cycle" yaml:"events_per_cycle"`
	EventHistory     int `json:"event_history" yaml:"event_history"`
	Goals            int `json:"goals" yaml:"goals"`
}

func DefaultCapacities() Capacities {
	return Capacities{
		EventKnowledge:   64,
		PerceivedAgents:  64,
		PerceivedObjects: 64,
		EventsPerCycle:   64,
		EventHistory:     256,
		Goals:            16,
	}
}

type Module struct {
	self model.AgentState
	time int64
	cell model.CellID

	eventKnowledge   *bounded.FIFOMap[string, *evidence.EventKnowledge]
	perceivedAgents  *bounded.FIFOMap[int, model.AgentState]
	perceivedObjects *bounded.FIFOMap[int, model.EnvObjectState]
	eventsThisTick   *bounded.FIFOQueue[evidence.CombinedReasonedData]
	eventHistory     *bounded.FIFOQueue[evidence.CombinedReasonedData]
	collisions       []model.Collision
	goals            *bounded.PriorityQueue[model.Goal]
}

func New(self model.AgentState, caps Capacities) (*Module, error) {
	var err error
	m := &Module{self: self}
	if m.eventKnowledge, err = bounded.NewFIFOMap[string, *evidence.EventKnowledge](caps.EventKnowledge); err != nil {
		return nil, fmt.Errorf("event knowledge capacity: %w", err)
	}
	if m.perceivedAgents, err = bounded.NewFIFOMap[int, model.AgentState](caps.PerceivedAgents); err != nil {
		return nil, fmt.Errorf("perceived agents capacity: %w", err)
	}
	if m.perceivedObjects, err = bounded.NewFIFOMap[int, model.EnvObjectState](caps.PerceivedObjects); err != nil {
		return nil, fmt.Errorf("perceived objects capacity: %w", err)
	}
	if m.eventsThisTick, err = bounded.NewFIFOQueue[evidence.CombinedReasonedData](caps.EventsPerCycle); err != nil {
		return nil, fmt.Errorf("events per cycle capacity: %w", err)
	}
	if m.eventHistory, err = bounded.NewFIFOQueue[evidence.CombinedReasonedData](caps.EventHistory); err != nil {
		return nil, fmt.Errorf("event history capacity: %w", err)
	}
	if m.goals, err = bounded.NewPriorityQueue[model.Goal](caps.Goals, model.CompareGoalUtility); err != nil {
		return nil, fmt.Errorf("goals capacity: %w", err)
	}
	return m, nil
}

func (m *Module) Self() model.AgentState         { return m.self }
func (m *Module) SetSelf(state model.AgentState) { m.self = state }
func (m *Module) ID() int                        { return m.self.ID }
func (m *Module) SetID(id int)                   { m.self.ID = id }
func (m *Module) Time() int64                    { return m.time }
func (m *Module) SetTime(t int64)                { m.time = t }
func (m *Module) Cell() model.CellID             { return m.cell }
func (m *Module) SetCell(c model.CellID)         { m.cell = c }

// AddEventKnowledge indexes k by name, replacing any earlier entry with the
// same name. The oldest entry is dropped once capacity is reached.
func (m *Module) AddEventKnowledge(k *evidence.EventKnowledge) {
	if k == nil {
		return
	}
	m.eventKnowledge.Put(k.Name(), k)
}

func (m *Module) EventKnowledgeByName(name string) (*evidence.EventKnowledge, bool) {
	return m.eventKnowledge.Get(name)
}

func (m *Module) EventKnowledgeByType(eventType string) []*evidence.EventKnowledge {
	out := make([]*evidence.EventKnowledge, 0)
	m.eventKnowledge.Range(func(_ string, k *evidence.EventKnowledge) bool {
		if k.Type() == eventType {
			out = append(out, k)
		}
		return true
	})
	return out
}

// Lookup adapts the event knowledge index for evidence fusion.
func (m *Module) Lookup() evidence.KnowledgeLookup {
	return m.EventKnowledgeByName
}

func (m *Module) AddCombinedPerception(crd evidence.CombinedReasonedData) {
	m.eventsThisTick.Push(crd)
	m.eventHistory.Push(crd)
}

// EventsThisTick returns only what was added since the last
// ClearPerceptionKnowledge.
func (m *Module) EventsThisTick() []evidence.CombinedReasonedData {
	return m.eventsThisTick.Items()
}

// EventHistory returns the most recent fused beliefs across cycles.
func (m *Module) EventHistory() []evidence.CombinedReasonedData {
	return m.eventHistory.Items()
}

func (m *Module) AddPerceivedAgent(a model.AgentState) { m.perceivedAgents.Put(a.ID, a) }

func (m *Module) AddPerceivedObject(o model.EnvObjectState) { m.perceivedObjects.Put(o.ID, o) }

func (m *Module) PerceivedAgents() []model.AgentState { return m.perceivedAgents.Values() }

func (m *Module) PerceivedObjects() []model.EnvObjectState { return m.perceivedObjects.Values() }

func (m *Module) PerceivedAgent(id int) (model.AgentState, bool) { return m.perceivedAgents.Get(id) }

func (m *Module) PerceivedObject(id int) (model.EnvObjectState, bool) {
	return m.perceivedObjects.Get(id)
}

func (m *Module) SetCollisions(c []model.Collision) {
	m.collisions = append(m.collisions[:0], c...)
}

func (m *Module) Collisions() []model.Collision {
	return append([]model.Collision(nil), m.collisions...)
}

// ClearPerceptionKnowledge drops everything perceived in the previous cycle.
// The event history and event knowledge survive.
func (m *Module) ClearPerceptionKnowledge() {
	m.eventsThisTick.Clear()
	m.perceivedAgents.Clear()
	m.perceivedObjects.Clear()
	m.collisions = m.collisions[:0]
}

// Goals exposes the goal queue; the planning module decides what enters and
// leaves it.
func (m *Module) Goals() *bounded.PriorityQueue[model.Goal] { return m.goals }

// Checkpoint is a copy of everything a cycle can change in the module. Event
// knowledge is not included; it only changes outside the cycle.
type Checkpoint struct {
	self             model.AgentState
	time             int64
	cell             model.CellID
	perceivedAgents  *bounded.FIFOMap[int, model.AgentState]
	perceivedObjects *bounded.FIFOMap[int, model.EnvObjectState]
	eventsThisTick   *bounded.FIFOQueue[evidence.CombinedReasonedData]
	eventHistory     *bounded.FIFOQueue[evidence.CombinedReasonedData]
	collisions       []model.Collision
	goals            *bounded.PriorityQueue[model.Goal]
}

func (m *Module) Checkpoint() *Checkpoint {
	return &Checkpoint{
		self:             m.self,
		time:             m.time,
		cell:             m.cell,
		perceivedAgents:  m.perceivedAgents.Clone(),
		perceivedObjects: m.perceivedObjects.Clone(),
		eventsThisTick:   m.eventsThisTick.Clone(),
		eventHistory:     m.eventHistory.Clone(),
		collisions:       append([]model.Collision(nil), m.collisions...),
		goals:            m.goals.Clone(),
	}
}

// Restore puts the module back to the state captured by c. Collections are
// restored in place, so references obtained from Goals stay valid.
func (m *Module) Restore(c *Checkpoint) {
	if c == nil {
		return
	}
	m.self = c.self
	m.time = c.time
	m.cell = c.cell
	*m.perceivedAgents = *c.perceivedAgents.Clone()
	*m.perceivedObjects = *c.perceivedObjects.Clone()
	*m.eventsThisTick = *c.eventsThisTick.Clone()
	*m.eventHistory = *c.eventHistory.Clone()
	m.collisions = append(m.collisions[:0], c.collisions...)
	*m.goals = *c.goals.Clone()
}
