package agent

import (
	"fmt"
	"log/slog"

	"situsim/internal/bounded"
	"situsim/internal/knowledge"
	"situsim/internal/logging"
	"situsim/internal/model"
)

// Task is one goal the planner selected for execution this cycle.
type Task struct {
	Name string
	Goal model.Goal
}

// Planning turns knowledge, goals and received messages into task
// assignments.
type Planning interface {
	AddGoal(k *knowledge.Module, g model.Goal)
	Plan(k *knowledge.Module, inbox Inbox) []Task
}

// Rewindable is implemented by planners that keep bookkeeping across cycles
// and can undo the changes made by a cycle that was aborted.
type Rewindable interface {
	Checkpoint()
	Rollback()
}

// Reflex proposes goals from the current knowledge and this cycle's messages.
type Reflex func(k *knowledge.Module, messages []model.AgentMessage) []model.Goal

// GoalPlanner keeps goals prioritised by utility in the agent's goal queue,
// prunes achieved and expired ones, and assigns the single best goal.
type GoalPlanner struct {
	reflexes []Reflex
	reach    float64
	consumed *bounded.FIFOMap[string, struct{}]
	saved    *bounded.FIFOMap[string, struct{}]
	logger   *slog.Logger
}

const consumedGoalMemory = 128

func NewGoalPlanner(reach float64, logger *slog.Logger, reflexes ...Reflex) *GoalPlanner {
	consumed, _ := bounded.NewFIFOMap[string, struct{}](consumedGoalMemory)
	return &GoalPlanner{
		reflexes: reflexes,
		reach:    reach,
		consumed: consumed,
		logger:   logging.OrDiscard(logger),
	}
}

// AddGoal enqueues g unless a goal with the same name is resident or was
// recently consumed.
func (p *GoalPlanner) AddGoal(k *knowledge.Module, g model.Goal) {
	if p.consumed.Contains(g.Name) {
		return
	}
	for _, resident := range k.Goals().Items() {
		if resident.Name == g.Name {
			return
		}
	}
	if evicted, ok := k.Goals().Push(g); ok {
		p.logger.Debug("goal evicted", "agent", k.ID(), "goal", evicted.Name, "utility", evicted.Utility)
	}
}

func (p *GoalPlanner) Plan(k *knowledge.Module, inbox Inbox) []Task {
	messages := make([]model.AgentMessage, 0)
	if inbox != nil {
		for {
			msg, ok := inbox.GetMessageFromInbox()
			if !ok {
				break
			}
			messages = append(messages, msg)
		}
	}

	for _, reflex := range p.reflexes {
		for _, g := range reflex(k, messages) {
			p.AddGoal(k, g)
		}
	}

	now := k.Time()
	k.Goals().RemoveFunc(func(g model.Goal) bool {
		if g.Prunable(now) || p.achieved(k, g) {
			p.consumed.Put(g.Name, struct{}{})
			return true
		}
		return false
	})

	best, ok := k.Goals().Peek()
	if !ok {
		return nil
	}
	// Alerts are one-shot: assigning them consumes them.
	if best.Type == model.GoalAlert {
		k.Goals().Pop()
		p.consumed.Put(best.Name, struct{}{})
	}
	return []Task{{Name: best.Type, Goal: best}}
}

func (p *GoalPlanner) Checkpoint() { p.saved = p.consumed.Clone() }

func (p *GoalPlanner) Rollback() {
	if p.saved != nil {
		p.consumed = p.saved.Clone()
	}
}

func (p *GoalPlanner) achieved(k *knowledge.Module, g model.Goal) bool {
	switch g.Type {
	case model.GoalReach:
		target, err := goalPosition(g)
		if err != nil {
			return true
		}
		return horizontalDistance(k.Self().Pose.Position, target) <= p.reach
	case model.GoalClaim:
		id, err := goalObjectID(g)
		if err != nil {
			return true
		}
		obj, seen := k.PerceivedObject(id)
		if !seen {
			return false
		}
		return obj.Owner != 0
	default:
		return false
	}
}

func goalPosition(g model.Goal) (model.Vec3, error) {
	switch v := g.Value.(type) {
	case model.Vec3:
		return v, nil
	case *model.Vec3:
		if v != nil {
			return *v, nil
		}
	}
	return model.Vec3{}, fmt.Errorf("goal %s: value %T is not a position", g.Name, g.Value)
}

func goalObjectID(g model.Goal) (int, error) {
	if id, ok := g.Value.(int); ok {
		return id, nil
	}
	return 0, fmt.Errorf("goal %s: value %T is not an object id", g.Name, g.Value)
}
