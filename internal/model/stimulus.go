package model

type StimulusKind string

const (
	StimulusMove  StimulusKind = "move"
	StimulusTurn  StimulusKind = "turn"
	StimulusClaim StimulusKind = "claim"
	StimulusEmit  StimulusKind = "emit"
	StimulusIdle  StimulusKind = "idle"
)

// AgentStimulus is one world-affecting intent. Pose is used by move and
// turn, ObjectID by claim, Event by emit (Lifetime cycles, 0 = one cycle).
type AgentStimulus struct {
	Kind     StimulusKind `json:"kind"`
	Pose     Pose         `json:"pose,omitempty"`
	ObjectID int          `json:"object_id,omitempty"`
	Event    *Event       `json:"event,omitempty"`
	Lifetime int64        `json:"lifetime,omitempty"`
}

// Stimuli is everything one agent intends for one cycle.
type Stimuli struct {
	Time    int64           `json:"time"`
	Cell    CellID          `json:"cell"`
	AgentID int             `json:"agent_id"`
	Items   []AgentStimulus `json:"items"`
}

func NewStimuli(time int64, cell CellID, agentID int) Stimuli {
	return Stimuli{Time: time, Cell: cell, AgentID: agentID, Items: []AgentStimulus{}}
}

func (s *Stimuli) Add(items ...AgentStimulus) {
	s.Items = append(s.Items, items...)
}

func (s Stimuli) Len() int { return len(s.Items) }

func (s Stimuli) Empty() bool { return len(s.Items) == 0 }

func Move(pose Pose) AgentStimulus { return AgentStimulus{Kind: StimulusMove, Pose: pose} }

func Turn(facing Vec3) AgentStimulus {
	return AgentStimulus{Kind: StimulusTurn, Pose: Pose{Facing: facing}}
}

func Claim(objectID int) AgentStimulus { return AgentStimulus{Kind: StimulusClaim, ObjectID: objectID} }

func Emit(event Event, lifetime int64) AgentStimulus {
	e := event.Clone()
	return AgentStimulus{Kind: StimulusEmit, Event: &e, Lifetime: lifetime}
}
