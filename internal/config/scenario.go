package config

import (
	"fmt"

	"situsim/internal/model"
)

// Scenario describes the initial world and the event knowledge every agent
// starts with.
type Scenario struct {
	Knowledge []EventKnowledgeSpec `json:"knowledge" yaml:"knowledge"`
	Agents    []AgentSpec          `json:"agents" yaml:"agents"`
	Objects   []ObjectSpec         `json:"objects" yaml:"objects"`
	Events    []EventSpec          `json:"events" yaml:"events"`
}

type PropertySpec struct {
	Property string  `json:"property" yaml:"property"`
	Sense    string  `json:"sense" yaml:"sense"`
	Min      float64 `json:"min" yaml:"min"`
	Max      float64 `json:"max" yaml:"max"`
}

type EventKnowledgeSpec struct {
	Name       string         `json:"name" yaml:"name"`
	Type       string         `json:"type" yaml:"type"`
	Properties []PropertySpec `json:"properties" yaml:"properties"`
}

type AgentSpec struct {
	ID               int              `json:"id" yaml:"id"`
	Type             string           `json:"type" yaml:"type"`
	Position         model.Vec3       `json:"position" yaml:"position"`
	Facing           model.Vec3       `json:"facing" yaml:"facing"`
	Senses           model.SenseFlags `json:"senses" yaml:"senses"`
	Radius           float64          `json:"radius" yaml:"radius"`
	AcousticEmission float64          `json:"acoustic_emission" yaml:"acoustic_emission"`
	// ObjectType restricts what a forager claims; EventType what a sentinel
	// alerts on. Empty matches anything.
	ObjectType string `json:"object_type,omitempty" yaml:"object_type,omitempty"`
	EventType  string `json:"event_type,omitempty" yaml:"event_type,omitempty"`
}

func (s AgentSpec) State() model.AgentState {
	return model.AgentState{
		ID:               s.ID,
		Type:             model.AgentType(s.Type),
		Pose:             model.Pose{Position: s.Position, Facing: s.Facing},
		Senses:           s.Senses,
		Radius:           s.Radius,
		AcousticEmission: s.AcousticEmission,
	}
}

type ObjectSpec struct {
	ID               int        `json:"id" yaml:"id"`
	Type             string     `json:"type" yaml:"type"`
	Position         model.Vec3 `json:"position" yaml:"position"`
	Scale            model.Vec3 `json:"scale" yaml:"scale"`
	Obstacle         bool       `json:"obstacle" yaml:"obstacle"`
	AcousticEmission float64    `json:"acoustic_emission" yaml:"acoustic_emission"`
}

func (s ObjectSpec) State() model.EnvObjectState {
	return model.EnvObjectState{
		ID:               s.ID,
		Type:             s.Type,
		Pose:             model.Pose{Position: s.Position},
		Scale:            s.Scale,
		Obstacle:         s.Obstacle,
		AcousticEmission: s.AcousticEmission,
	}
}

type EventSpec struct {
	ID               int                `json:"id" yaml:"id"`
	Name             string             `json:"name" yaml:"name"`
	Type             string             `json:"type" yaml:"type"`
	Position         model.Vec3         `json:"position" yaml:"position"`
	Properties       map[string]float64 `json:"properties" yaml:"properties"`
	Modalities       []string           `json:"modalities,omitempty" yaml:"modalities,omitempty"`
	AcousticEmission float64            `json:"acoustic_emission" yaml:"acoustic_emission"`
	// Lifetime in cycles; zero keeps the event for the whole run.
	Lifetime int64 `json:"lifetime,omitempty" yaml:"lifetime,omitempty"`
}

func (s EventSpec) Event() (model.Event, error) {
	modalities, err := ParseSenses(s.Modalities)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %q: %w", s.Name, err)
	}
	e := model.Event{
		ID:               s.ID,
		Name:             s.Name,
		Type:             s.Type,
		Position:         s.Position,
		Properties:       make(map[string]float64, len(s.Properties)),
		Modalities:       modalities,
		AcousticEmission: s.AcousticEmission,
	}
	for k, v := range s.Properties {
		e.Properties[k] = v
	}
	if s.Lifetime > 0 {
		e.ExpiresAt = s.Lifetime
	}
	return e, nil
}

// Validate checks ids and sense names. Agent types are checked when the
// simulation is built.
func (s Scenario) Validate() error {
	seen := make(map[int]bool)
	for _, a := range s.Agents {
		if a.ID <= 0 {
			return fmt.Errorf("scenario agent id must be positive, got %d", a.ID)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate scenario agent id: %d", a.ID)
		}
		seen[a.ID] = true
		if !a.Position.IsFinite() || !a.Facing.IsFinite() {
			return fmt.Errorf("scenario agent %d has a non-finite pose", a.ID)
		}
	}
	objects := make(map[int]bool)
	for _, o := range s.Objects {
		if o.ID <= 0 || objects[o.ID] {
			return fmt.Errorf("scenario object ids must be positive and unique, got %d", o.ID)
		}
		objects[o.ID] = true
	}
	for _, e := range s.Events {
		if e.Name == "" {
			return fmt.Errorf("scenario event %d needs a name", e.ID)
		}
		if _, err := ParseSenses(e.Modalities); err != nil {
			return fmt.Errorf("scenario event %q: %w", e.Name, err)
		}
	}
	for _, k := range s.Knowledge {
		if k.Name == "" {
			return fmt.Errorf("event knowledge needs a name")
		}
		for _, p := range k.Properties {
			if _, err := model.ParseSense(p.Sense); err != nil {
				return fmt.Errorf("event knowledge %q property %q: %w", k.Name, p.Property, err)
			}
		}
	}
	return nil
}

// DefaultScenario is a small world: two foragers and a sentinel around a
// wall, some berries and a fire.
func DefaultScenario() Scenario {
	return Scenario{
		Knowledge: []EventKnowledgeSpec{
			{
				Name: "fire",
				Type: "hazard",
				Properties: []PropertySpec{
					{Property: "heat", Sense: "vision", Min: 0.6, Max: 1.0},
					{Property: "heat", Sense: "smell", Min: 0.4, Max: 1.0},
				},
			},
			{
				Name: "alarm",
				Type: "signal",
				Properties: []PropertySpec{
					{Property: "loudness", Sense: "audio", Min: 0.5, Max: 1.5},
				},
			},
		},
		Agents: []AgentSpec{
			{ID: 1, Type: "forager", Position: model.Vec3{X: 2, Z: 2}, Facing: model.Vec3{Z: 1}, Senses: model.SenseFlags{Vision: true, Audio: true}, Radius: 0.4, ObjectType: "berry"},
			{ID: 2, Type: "forager", Position: model.Vec3{X: 6, Z: 2}, Facing: model.Vec3{Z: 1}, Senses: model.SenseFlags{Vision: true, Smell: true}, Radius: 0.4, ObjectType: "berry"},
			{ID: 3, Type: "sentinel", Position: model.Vec3{X: 14, Z: 10}, Facing: model.Vec3{X: 1}, Senses: model.SenseFlags{Vision: true, Audio: true, Smell: true}, Radius: 0.4, EventType: "hazard"},
		},
		Objects: []ObjectSpec{
			{ID: 100, Type: "berry", Position: model.Vec3{X: 3, Z: 6}, Scale: model.Vec3{X: 0.2, Y: 0.2, Z: 0.2}},
			{ID: 101, Type: "berry", Position: model.Vec3{X: 5, Z: 7}, Scale: model.Vec3{X: 0.2, Y: 0.2, Z: 0.2}},
			{ID: 102, Type: "berry", Position: model.Vec3{X: 4, Z: 9}, Scale: model.Vec3{X: 0.2, Y: 0.2, Z: 0.2}},
			{ID: 200, Type: "wall", Position: model.Vec3{X: 10, Z: 6}, Scale: model.Vec3{X: 1, Y: 2, Z: 6}, Obstacle: true},
		},
		Events: []EventSpec{
			{ID: 1, Name: "fire", Type: "hazard", Position: model.Vec3{X: 19, Z: 11}, Properties: map[string]float64{"heat": 0.9}, Modalities: []string{"vision", "smell"}},
		},
	}
}
