package agent

import (
	"fmt"

	"situsim/internal/evidence"
	"situsim/internal/knowledge"
	"situsim/internal/model"
)

// TaskModule executes assigned tasks against current knowledge. It must be
// deterministic: the only side effects allowed are the returned stimuli and
// messages queued on outbox.
type TaskModule interface {
	Execute(k *knowledge.Module, tasks []Task, outbox Outbox) (model.Stimuli, error)
}

// Executor is the default task module for the built-in goal types.
type Executor struct {
	Speed         float64
	Reach         float64
	AlertLifetime int64
	AlertLoudness float64
}

func DefaultExecutor() Executor {
	return Executor{Speed: 1, Reach: 1, AlertLifetime: 2, AlertLoudness: 1}
}

const (
	AlarmEventName = "alarm"
	AlarmEventType = "signal"
	AlarmProperty  = "loudness"
)

func (e Executor) Execute(k *knowledge.Module, tasks []Task, outbox Outbox) (model.Stimuli, error) {
	stimuli := model.NewStimuli(k.Time(), k.Cell(), k.ID())
	for _, task := range tasks {
		switch task.Goal.Type {
		case model.GoalReach:
			target, err := goalPosition(task.Goal)
			if err != nil {
				return stimuli, err
			}
			stimuli.Add(e.stepToward(k.Self().Pose, target))
		case model.GoalClaim:
			id, err := goalObjectID(task.Goal)
			if err != nil {
				return stimuli, err
			}
			obj, ok := k.PerceivedObject(id)
			if !ok {
				continue
			}
			if horizontalDistance(k.Self().Pose.Position, obj.Pose.Position) <= e.Reach {
				stimuli.Add(model.Claim(id))
			} else {
				stimuli.Add(e.stepToward(k.Self().Pose, obj.Pose.Position))
			}
		case model.GoalAlert:
			crd, ok := task.Goal.Value.(evidence.CombinedReasonedData)
			if !ok {
				return stimuli, fmt.Errorf("goal %s: value %T is not a fused event", task.Goal.Name, task.Goal.Value)
			}
			stimuli.Add(model.Emit(e.alarm(k), e.AlertLifetime))
			if outbox != nil {
				outbox.SendMessage(model.AgentMessage{
					To:           model.Broadcast,
					Performative: model.Inform,
					Topic:        TopicSighting,
					Content:      crd.Position,
				})
			}
		default:
			return stimuli, fmt.Errorf("unsupported task %q", task.Goal.Type)
		}
	}
	return stimuli, nil
}

func (e Executor) stepToward(from model.Pose, target model.Vec3) model.AgentStimulus {
	delta := model.Vec3{X: target.X - from.Position.X, Z: target.Z - from.Position.Z}
	dist := delta.Len()
	if dist == 0 {
		return model.Move(from)
	}
	step := e.Speed
	if step <= 0 || step > dist {
		step = dist
	}
	dir := delta.Normalized()
	next := model.Pose{
		Position: model.Vec3{
			X: from.Position.X + dir.X*step,
			Y: from.Position.Y,
			Z: from.Position.Z + dir.Z*step,
		},
		Facing: dir,
	}
	return model.Move(next)
}

func (e Executor) alarm(k *knowledge.Module) model.Event {
	return model.Event{
		Name:             AlarmEventName,
		Type:             AlarmEventType,
		Position:         k.Self().Pose.Position,
		Properties:       map[string]float64{AlarmProperty: e.AlertLoudness},
		Modalities:       []model.Sense{model.SenseAudio},
		AcousticEmission: e.AlertLoudness,
		Source:           k.ID(),
	}
}
