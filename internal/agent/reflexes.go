package agent

import (
	"fmt"

	"situsim/internal/knowledge"
	"situsim/internal/model"
)

// Message topics exchanged by the built-in archetypes.
const (
	TopicGoto     = "goto"
	TopicSighting = "sighting"
)

// ClaimVisibleObjects proposes a claim goal for every unowned perceived
// object of objectType ("" matches any type). Closer objects get higher
// utility.
func ClaimVisibleObjects(objectType string, ttl int64) Reflex {
	return func(k *knowledge.Module, _ []model.AgentMessage) []model.Goal {
		self := k.Self().Pose.Position
		goals := make([]model.Goal, 0)
		for _, obj := range k.PerceivedObjects() {
			if obj.Owner != 0 || obj.Obstacle {
				continue
			}
			if objectType != "" && obj.Type != objectType {
				continue
			}
			utility := 1 / (1 + horizontalDistance(self, obj.Pose.Position))
			goals = append(goals, model.NewGoal(
				model.GoalClaim,
				fmt.Sprintf("claim-%d", obj.ID),
				obj.ID,
				model.WithUtility(utility),
				model.WithRemoveTime(expiry(k.Time(), ttl)),
			))
		}
		return goals
	}
}

// AlertOnEvents proposes an alert for every fused event of eventType ("" any)
// believed with at least minConfidence.
func AlertOnEvents(eventType string, minConfidence float64) Reflex {
	return func(k *knowledge.Module, _ []model.AgentMessage) []model.Goal {
		goals := make([]model.Goal, 0)
		for _, crd := range k.EventsThisTick() {
			if eventType != "" && crd.EventType != eventType {
				continue
			}
			if crd.Confidence < minConfidence {
				continue
			}
			goals = append(goals, model.NewGoal(
				model.GoalAlert,
				fmt.Sprintf("alert-%d", crd.EventID),
				crd,
				model.WithUtility(10*crd.Confidence),
				model.WithRemoveTime(k.Time()+1),
			))
		}
		return goals
	}
}

// FollowRequests turns goto requests and sighting reports into reach goals.
func FollowRequests(ttl int64) Reflex {
	return func(k *knowledge.Module, messages []model.AgentMessage) []model.Goal {
		goals := make([]model.Goal, 0)
		for _, msg := range messages {
			target, ok := msg.Content.(model.Vec3)
			if !ok {
				continue
			}
			var utility float64
			switch {
			case msg.Performative == model.Request && msg.Topic == TopicGoto:
				utility = 5
			case msg.Performative == model.Inform && msg.Topic == TopicSighting:
				utility = 2
			default:
				continue
			}
			goals = append(goals, model.NewGoal(
				model.GoalReach,
				fmt.Sprintf("reach-%s", msg.ID),
				target,
				model.WithUtility(utility),
				model.WithRemoveTime(expiry(k.Time(), ttl)),
			))
		}
		return goals
	}
}

func expiry(now, ttl int64) int64 {
	if ttl <= 0 {
		return 0
	}
	return now + ttl
}

func horizontalDistance(a, b model.Vec3) float64 {
	return model.Vec3{X: a.X - b.X, Z: a.Z - b.Z}.Len()
}
