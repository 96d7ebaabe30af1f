package model

import "sort"

// WorldSnapshot is the read-only export of committed world state handed to
// spectators and storage after every commit.
type WorldSnapshot struct {
	VersionedRecord
	RunID   string           `json:"run_id"`
	Time    int64            `json:"time"`
	Agents  []AgentState     `json:"agents"`
	Objects []EnvObjectState `json:"objects"`
	Events  []Event          `json:"events"`
}

func (s WorldSnapshot) FindAgent(id int) (AgentState, bool) {
	i := sort.Search(len(s.Agents), func(i int) bool { return s.Agents[i].ID >= id })
	if i < len(s.Agents) && s.Agents[i].ID == id {
		return s.Agents[i], true
	}
	return AgentState{}, false
}

func (s WorldSnapshot) FindObject(id int) (EnvObjectState, bool) {
	i := sort.Search(len(s.Objects), func(i int) bool { return s.Objects[i].ID >= id })
	if i < len(s.Objects) && s.Objects[i].ID == id {
		return s.Objects[i], true
	}
	return EnvObjectState{}, false
}

func (s WorldSnapshot) FindEvent(id int) (Event, bool) {
	i := sort.Search(len(s.Events), func(i int) bool { return s.Events[i].ID >= id })
	if i < len(s.Events) && s.Events[i].ID == id {
		return s.Events[i].Clone(), true
	}
	return Event{}, false
}

// RunSummary records one coordinator run.
type RunSummary struct {
	VersionedRecord
	RunID        string `json:"run_id"`
	CreatedAtUTC string `json:"created_at_utc"`
	Cycles       int64  `json:"cycles"`
	FinalTime    int64  `json:"final_time"`
	Agents       int    `json:"agents"`
	Conflicts    int    `json:"conflicts"`
	Failures     int    `json:"failures"`
	Messages     int    `json:"messages"`
	Aborted      bool   `json:"aborted"`
}

// AgentFailure records one agent whose cycle computation failed.
type AgentFailure struct {
	VersionedRecord
	RunID   string `json:"run_id"`
	Time    int64  `json:"time"`
	AgentID int    `json:"agent_id"`
	Phase   string `json:"phase"`
	Error   string `json:"error"`
}
