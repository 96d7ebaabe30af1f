package situsim

import (
	"fmt"
	"log/slog"

	"situsim/internal/agent"
	"situsim/internal/config"
	"situsim/internal/evidence"
	"situsim/internal/model"
	"situsim/internal/scape"
)

// Simulation is a world populated from a configuration, plus the agents that
// inhabit it. Nothing runs until the agents are handed to a coordinator.
type Simulation struct {
	World  *scape.World
	Agents []*agent.Agent
}

// Build validates cfg and creates the world, its objects and events, and one
// agent per scenario entry. Every agent gets its own copy of the scenario's
// event knowledge.
func Build(cfg *config.Config, logger *slog.Logger) (*Simulation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	grid, err := scape.NewGrid(cfg.Simulation.CellSize, cfg.CellMargin())
	if err != nil {
		return nil, err
	}
	world, err := scape.NewWorld(grid,
		scape.WithLogger(logger),
		scape.WithMaxStep(cfg.Simulation.MaxStep),
	)
	if err != nil {
		return nil, err
	}

	for _, o := range cfg.Scenario.Objects {
		if err := world.AddObject(o.State()); err != nil {
			return nil, fmt.Errorf("scenario object %d: %w", o.ID, err)
		}
	}
	for _, spec := range cfg.Scenario.Events {
		e, err := spec.Event()
		if err != nil {
			return nil, err
		}
		if _, err := world.AddEvent(e); err != nil {
			return nil, fmt.Errorf("scenario event %q: %w", spec.Name, err)
		}
	}

	behaviour := cfg.Behaviour
	executor := agent.Executor{
		Speed:         behaviour.Speed,
		Reach:         behaviour.Reach,
		AlertLifetime: behaviour.AlertLifetime,
		AlertLoudness: behaviour.AlertLoudness,
	}

	sim := &Simulation{World: world, Agents: make([]*agent.Agent, 0, len(cfg.Scenario.Agents))}
	for _, spec := range cfg.Scenario.Agents {
		state := spec.State()
		planner, err := agent.NewArchetypePlanner(state.Type, agent.ArchetypeParams{
			ObjectType:    spec.ObjectType,
			EventType:     spec.EventType,
			MinConfidence: behaviour.MinConfidence,
			GoalTTL:       behaviour.GoalTTL,
			Executor:      executor,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("scenario agent %d: %w", spec.ID, err)
		}
		a, err := agent.New(state,
			agent.WithCapacities(cfg.Capacity.Knowledge),
			agent.WithPerception(cfg.Perception),
			agent.WithMailboxes(cfg.Capacity.Inbox, cfg.Capacity.Outbox),
			agent.WithPlanning(planner),
			agent.WithTask(executor),
			agent.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		knowledge, err := eventKnowledge(cfg.Scenario.Knowledge)
		if err != nil {
			return nil, err
		}
		for _, k := range knowledge {
			a.AddEventKnowledge(k)
		}
		if err := world.AddAgent(state); err != nil {
			return nil, fmt.Errorf("scenario agent %d: %w", spec.ID, err)
		}
		sim.Agents = append(sim.Agents, a)
	}
	return sim, nil
}

func eventKnowledge(specs []config.EventKnowledgeSpec) ([]*evidence.EventKnowledge, error) {
	out := make([]*evidence.EventKnowledge, 0, len(specs))
	for _, spec := range specs {
		k := evidence.NewEventKnowledge(spec.Name, spec.Type)
		for _, p := range spec.Properties {
			sense, err := model.ParseSense(p.Sense)
			if err != nil {
				return nil, fmt.Errorf("event knowledge %q: %w", spec.Name, err)
			}
			property, err := evidence.NewEventPropertyKnowledge(p.Property, sense, p.Min, p.Max)
			if err != nil {
				return nil, fmt.Errorf("event knowledge %q property %q: %w", spec.Name, p.Property, err)
			}
			if err := k.AddProperty(property); err != nil {
				return nil, fmt.Errorf("event knowledge %q: %w", spec.Name, err)
			}
		}
		out = append(out, k)
	}
	return out, nil
}
