package model

import (
	"fmt"
	"sort"
)

// CellID identifies one square partition of the X/Z ground plane.
type CellID struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (c CellID) Less(o CellID) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Z < o.Z
}

func (c CellID) String() string {
	return fmt.Sprintf("cell(%d,%d)", c.X, c.Z)
}

func SortCellIDs(ids []CellID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// CellState is the read-only view of one cell (or the union of a cell and
// its border neighbours) at one cycle. Accessors hand out copies, so a holder
// can never alter what other agents or the world see.
type CellState struct {
	time       int64
	cell       CellID
	agents     []AgentState
	objects    []EnvObjectState
	events     []Event
	collisions map[int][]Collision
}

// NewCellState copies its inputs and orders them by id.
func NewCellState(time int64, cell CellID, agents []AgentState, objects []EnvObjectState, events []Event, collisions map[int][]Collision) CellState {
	cs := CellState{
		time:       time,
		cell:       cell,
		agents:     append([]AgentState(nil), agents...),
		objects:    append([]EnvObjectState(nil), objects...),
		events:     make([]Event, 0, len(events)),
		collisions: make(map[int][]Collision),
	}
	for _, e := range events {
		cs.events = append(cs.events, e.Clone())
	}
	for _, a := range cs.agents {
		if hits, ok := collisions[a.ID]; ok && len(hits) > 0 {
			cs.collisions[a.ID] = append([]Collision(nil), hits...)
		}
	}
	sort.Slice(cs.agents, func(i, j int) bool { return cs.agents[i].ID < cs.agents[j].ID })
	sort.Slice(cs.objects, func(i, j int) bool { return cs.objects[i].ID < cs.objects[j].ID })
	sort.Slice(cs.events, func(i, j int) bool { return cs.events[i].ID < cs.events[j].ID })
	return cs
}

func (c CellState) Time() int64 { return c.time }

func (c CellState) Cell() CellID { return c.cell }

func (c CellState) Agents() []AgentState { return append([]AgentState(nil), c.agents...) }

func (c CellState) Objects() []EnvObjectState {
	return append([]EnvObjectState(nil), c.objects...)
}

func (c CellState) Events() []Event {
	out := make([]Event, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Clone())
	}
	return out
}

func (c CellState) Collisions(agentID int) []Collision {
	return append([]Collision(nil), c.collisions[agentID]...)
}

func (c CellState) Agent(id int) (AgentState, bool) {
	i := sort.Search(len(c.agents), func(i int) bool { return c.agents[i].ID >= id })
	if i < len(c.agents) && c.agents[i].ID == id {
		return c.agents[i], true
	}
	return AgentState{}, false
}

func (c CellState) Object(id int) (EnvObjectState, bool) {
	i := sort.Search(len(c.objects), func(i int) bool { return c.objects[i].ID >= id })
	if i < len(c.objects) && c.objects[i].ID == id {
		return c.objects[i], true
	}
	return EnvObjectState{}, false
}

func (c CellState) Event(id int) (Event, bool) {
	i := sort.Search(len(c.events), func(i int) bool { return c.events[i].ID >= id })
	if i < len(c.events) && c.events[i].ID == id {
		return c.events[i].Clone(), true
	}
	return Event{}, false
}

func (c CellState) Len() (agents, objects, events int) {
	return len(c.agents), len(c.objects), len(c.events)
}

// Union merges the contents of several cell states into one view centred on
// cell. Entities present in more than one input appear once.
func Union(time int64, cell CellID, states ...CellState) CellState {
	agents := make(map[int]AgentState)
	objects := make(map[int]EnvObjectState)
	events := make(map[int]Event)
	collisions := make(map[int][]Collision)
	for _, s := range states {
		for _, a := range s.agents {
			agents[a.ID] = a
		}
		for _, o := range s.objects {
			objects[o.ID] = o
		}
		for _, e := range s.events {
			events[e.ID] = e
		}
		for id, hits := range s.collisions {
			collisions[id] = hits
		}
	}

	agentList := make([]AgentState, 0, len(agents))
	for _, a := range agents {
		agentList = append(agentList, a)
	}
	objectList := make([]EnvObjectState, 0, len(objects))
	for _, o := range objects {
		objectList = append(objectList, o)
	}
	eventList := make([]Event, 0, len(events))
	for _, e := range events {
		eventList = append(eventList, e)
	}
	return NewCellState(time, cell, agentList, objectList, eventList, collisions)
}
