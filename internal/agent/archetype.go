package agent

import (
	"fmt"
	"log/slog"

	"situsim/internal/model"
)

// Built-in archetypes. Each maps to a planner with a fixed reflex set.
const (
	ArchetypeForager  model.AgentType = "forager"
	ArchetypeSentinel model.AgentType = "sentinel"
	ArchetypeIdle     model.AgentType = "idle"
)

// ArchetypeParams tunes the built-in reflexes.
type ArchetypeParams struct {
	ObjectType    string
	EventType     string
	MinConfidence float64
	GoalTTL       int64
	Executor      Executor
}

func DefaultArchetypeParams() ArchetypeParams {
	return ArchetypeParams{
		MinConfidence: 0.5,
		GoalTTL:       20,
		Executor:      DefaultExecutor(),
	}
}

// NewArchetypePlanner returns the planner for the given agent type.
func NewArchetypePlanner(kind model.AgentType, params ArchetypeParams, logger *slog.Logger) (Planning, error) {
	reach := params.Executor.Reach
	switch kind {
	case ArchetypeForager:
		return NewGoalPlanner(reach, logger,
			ClaimVisibleObjects(params.ObjectType, params.GoalTTL),
			FollowRequests(params.GoalTTL),
		), nil
	case ArchetypeSentinel:
		return NewGoalPlanner(reach, logger,
			AlertOnEvents(params.EventType, params.MinConfidence),
			FollowRequests(params.GoalTTL),
		), nil
	case ArchetypeIdle, "":
		return NewGoalPlanner(reach, logger), nil
	default:
		return nil, fmt.Errorf("unsupported agent type: %s", kind)
	}
}
