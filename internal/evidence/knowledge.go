// Package evidence models what an agent knows about detectable event
// properties and fuses per-modality percepts into trust-weighted beliefs.
package evidence

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"situsim/internal/model"
)

var ErrInvalidRange = errors.New("evidence: property range must be finite")

// EventPropertyKnowledge describes the valid sensed range of one event
// property for one modality. Alpha, R and Epsilon are derived when the value
// is built and only change on an explicit Recompute.
type EventPropertyKnowledge struct {
	property string
	sense    model.Sense
	min      float64
	max      float64
	alpha    float64
	r        float64
	epsilon  float64
}

func NewEventPropertyKnowledge(property string, sense model.Sense, min, max float64) (*EventPropertyKnowledge, error) {
	if property == "" {
		return nil, fmt.Errorf("property type is required")
	}
	if !finite(min) || !finite(max) {
		return nil, fmt.Errorf("%w: min=%v max=%v", ErrInvalidRange, min, max)
	}
	k := &EventPropertyKnowledge{property: property, sense: sense, min: min, max: max}
	k.Recompute()
	return k, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (k *EventPropertyKnowledge) Property() string   { return k.property }
func (k *EventPropertyKnowledge) Sense() model.Sense { return k.sense }
func (k *EventPropertyKnowledge) Min() float64       { return k.min }
func (k *EventPropertyKnowledge) Max() float64       { return k.max }
func (k *EventPropertyKnowledge) Alpha() float64     { return k.alpha }
func (k *EventPropertyKnowledge) Range() float64     { return k.r }
func (k *EventPropertyKnowledge) Epsilon() float64   { return k.epsilon }

// SetMin changes the raw bound without touching the derived fuzzy window.
func (k *EventPropertyKnowledge) SetMin(min float64) { k.min = min }

// SetMax changes the raw bound without touching the derived fuzzy window.
func (k *EventPropertyKnowledge) SetMax(max float64) { k.max = max }

// Recompute re-derives alpha, R and epsilon from the current min and max.
func (k *EventPropertyKnowledge) Recompute() {
	k.alpha = (k.min + k.max) / 2
	k.r = math.Abs(k.min - k.max)
	k.epsilon = k.r / 2
}

// Accepts reports whether v lies inside [alpha-epsilon, alpha+epsilon].
func (k *EventPropertyKnowledge) Accepts(v float64) bool {
	return v >= k.alpha-k.epsilon && v <= k.alpha+k.epsilon
}

type PropertyKey struct {
	Property string
	Sense    model.Sense
}

// EventKnowledge is a named belief about an environmental event: which of its
// properties can be sensed, through which modality, and in what range.
type EventKnowledge struct {
	name       string
	eventType  string
	properties map[PropertyKey]*EventPropertyKnowledge
}

func NewEventKnowledge(name, eventType string) *EventKnowledge {
	return &EventKnowledge{
		name:       name,
		eventType:  eventType,
		properties: make(map[PropertyKey]*EventPropertyKnowledge),
	}
}

func (k *EventKnowledge) Name() string { return k.name }

func (k *EventKnowledge) Type() string { return k.eventType }

// AddProperty registers p; each (property, sense) pair may appear once.
func (k *EventKnowledge) AddProperty(p *EventPropertyKnowledge) error {
	if p == nil {
		return fmt.Errorf("property knowledge is nil")
	}
	key := PropertyKey{Property: p.property, Sense: p.sense}
	if _, exists := k.properties[key]; exists {
		return fmt.Errorf("duplicate property knowledge: %s/%s", p.property, p.sense)
	}
	k.properties[key] = p
	return nil
}

func (k *EventKnowledge) Property(property string, sense model.Sense) (*EventPropertyKnowledge, bool) {
	p, ok := k.properties[PropertyKey{Property: property, Sense: sense}]
	return p, ok
}

// Properties returns every property knowledge ordered by property then sense
// preference.
func (k *EventKnowledge) Properties() []*EventPropertyKnowledge {
	out := make([]*EventPropertyKnowledge, 0, len(k.properties))
	for _, p := range k.properties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].property != out[j].property {
			return out[i].property < out[j].property
		}
		return out[i].sense.Rank() < out[j].sense.Rank()
	})
	return out
}
