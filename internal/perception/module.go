// Package perception turns a cell snapshot into agent-local detections and
// fused, trust-weighted event beliefs.
package perception

import (
	"context"
	"log/slog"

	"situsim/internal/evidence"
	"situsim/internal/logging"
	"situsim/internal/model"
)

// Module owns one agent's sensors and their per-cycle buffers. It is never
// shared between agents.
type Module struct {
	cfg     Config
	sensors []Sensor
	enabled map[model.Sense]bool
	buffers map[model.Sense]*buffer
	logger  *slog.Logger
}

type Option func(*Module)

func WithVisibility(v VisibilityAlgorithm) Option {
	return func(m *Module) {
		for i, s := range m.sensors {
			if vs, ok := s.(VisionSensor); ok {
				vs.visibility = v
				m.sensors[i] = vs
			}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func New(cfg Config, opts ...Option) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Module{
		cfg: cfg,
		sensors: []Sensor{
			VisionSensor{cfg: cfg.Vision, visibility: LineOfSight{}},
			AudioSensor{cfg: cfg.Audio},
			SmellSensor{cfg: cfg.Smell},
		},
		enabled: make(map[model.Sense]bool),
		buffers: make(map[model.Sense]*buffer),
		logger:  logging.Discard(),
	}
	for _, s := range m.sensors {
		m.buffers[s.Sense()] = &buffer{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Module) Config() Config { return m.cfg }

// PrepareSensors clears every buffer and arms only the channels the agent's
// capability flags enable.
func (m *Module) PrepareSensors(self model.AgentState) {
	for _, s := range m.sensors {
		m.buffers[s.Sense()].reset()
		m.enabled[s.Sense()] = self.Senses.Has(s.Sense())
	}
}

func (m *Module) Enabled(s model.Sense) bool { return m.enabled[s] }

// Perceive runs every armed sensor over the cell contents. The agent itself
// is never perceived.
func (m *Module) Perceive(self model.AgentState, cell model.CellState) {
	for _, s := range m.sensors {
		if !m.enabled[s.Sense()] {
			continue
		}
		buf := m.buffers[s.Sense()]
		for _, a := range cell.Agents() {
			if a.ID == self.ID {
				continue
			}
			target := Target{Kind: TargetAgent, ID: a.ID, Position: a.Pose.Position}
			if s.Detects(self, a.Pose.Position, a.AcousticEmission, target, cell) {
				buf.agents = append(buf.agents, a)
			}
		}
		for _, o := range cell.Objects() {
			target := Target{Kind: TargetObject, ID: o.ID, Position: o.Pose.Position}
			if s.Detects(self, o.Pose.Position, o.AcousticEmission, target, cell) {
				buf.objects = append(buf.objects, o)
			}
		}
		for _, e := range cell.Events() {
			if !e.DetectableBy(s.Sense()) {
				continue
			}
			target := Target{Kind: TargetEvent, ID: e.ID, Position: e.Position}
			if !s.Detects(self, e.Position, e.AcousticEmission, target, cell) {
				continue
			}
			for property, value := range e.Properties {
				buf.percepts = append(buf.percepts, evidence.Percept{
					EventID:   e.ID,
					EventName: e.Name,
					EventType: e.Type,
					Property:  property,
					Value:     value,
					Sense:     s.Sense(),
					Position:  e.Position,
					Time:      cell.Time(),
				})
			}
		}
		m.logger.Log(context.Background(), logging.LevelTrace, "sensor scan",
			"agent", self.ID,
			"sense", s.Sense().String(),
			"agents", len(buf.agents),
			"objects", len(buf.objects),
			"percepts", len(buf.percepts),
		)
	}
}

// Percepts returns this cycle's raw percepts across all senses.
func (m *Module) Percepts() []evidence.Percept {
	out := make([]evidence.Percept, 0)
	for _, s := range m.sensors {
		out = append(out, m.buffers[s.Sense()].percepts...)
	}
	return out
}

// PerceivedAgents returns each agent detected by any sense once, by id.
func (m *Module) PerceivedAgents() []model.AgentState {
	seen := make(map[int]bool)
	out := make([]model.AgentState, 0)
	for _, s := range m.sensors {
		for _, a := range m.buffers[s.Sense()].agents {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	return out
}

func (m *Module) PerceivedObjects() []model.EnvObjectState {
	seen := make(map[int]bool)
	out := make([]model.EnvObjectState, 0)
	for _, s := range m.sensors {
		for _, o := range m.buffers[s.Sense()].objects {
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			out = append(out, o)
		}
	}
	return out
}

// CombinePerceptions fuses this cycle's percepts against the agent's event
// knowledge.
func (m *Module) CombinePerceptions(lookup evidence.KnowledgeLookup) []evidence.CombinedReasonedData {
	return evidence.Fuse(m.Percepts(), lookup, m.cfg.Trust)
}
