package evidence

import (
	"fmt"
	"sort"

	"situsim/internal/model"
)

// TrustTable holds the per-modality confidence weights used during fusion.
type TrustTable struct {
	Vision float64 `json:"vision" yaml:"vision"`
	Audio  float64 `json:"audio" yaml:"audio"`
	Smell  float64 `json:"smell" yaml:"smell"`
}

func DefaultTrust() TrustTable {
	return TrustTable{Vision: 0.95, Audio: 0.70, Smell: 0.30}
}

func (t TrustTable) Of(s model.Sense) float64 {
	switch s {
	case model.SenseVision:
		return t.Vision
	case model.SenseAudio:
		return t.Audio
	case model.SenseSmell:
		return t.Smell
	default:
		return 0
	}
}

func (t TrustTable) Validate() error {
	for _, s := range model.SensePreference {
		if v := t.Of(s); v < 0 || v > 1 || !finite(v) {
			return fmt.Errorf("trust for %s must be within [0,1]: %v", s, v)
		}
	}
	return nil
}

// Percept is one raw observation of an event property through one sense.
type Percept struct {
	EventID   int
	EventName string
	EventType string
	Property  string
	Value     float64
	Sense     model.Sense
	Position  model.Vec3
	Time      int64
}

// PropertyBelief is the fused belief about one property of one event.
type PropertyBelief struct {
	Value      float64       `json:"value"`
	Confidence float64       `json:"confidence"`
	Sense      model.Sense   `json:"sense"`
	Senses     []model.Sense `json:"senses"`
}

// CombinedReasonedData is the fused belief about one perceived event.
// Confidence and Sense come from the most trusted accepted property.
type CombinedReasonedData struct {
	EventID    int                       `json:"event_id"`
	EventName  string                    `json:"event_name"`
	EventType  string                    `json:"event_type"`
	Position   model.Vec3                `json:"position"`
	Time       int64                     `json:"time"`
	Confidence float64                   `json:"confidence"`
	Sense      model.Sense               `json:"sense"`
	Properties map[string]PropertyBelief `json:"properties"`
}

// KnowledgeLookup resolves the event knowledge an agent holds for an event name.
type KnowledgeLookup func(eventName string) (*EventKnowledge, bool)

// Fuse groups percepts by event and property. A property is accepted when
// its value falls in the fuzzy window of at least one sense that observed it;
// the belief takes the highest trust among agreeing senses, preferring
// vision, then audio, then smell on ties. Events without any accepted
// property produce nothing.
func Fuse(percepts []Percept, lookup KnowledgeLookup, trust TrustTable) []CombinedReasonedData {
	if len(percepts) == 0 || lookup == nil {
		return nil
	}

	byEvent := make(map[int][]Percept)
	order := make([]int, 0)
	for _, p := range percepts {
		if _, seen := byEvent[p.EventID]; !seen {
			order = append(order, p.EventID)
		}
		byEvent[p.EventID] = append(byEvent[p.EventID], p)
	}
	sort.Ints(order)

	out := make([]CombinedReasonedData, 0, len(order))
	for _, eventID := range order {
		group := byEvent[eventID]
		head := group[0]
		knowledge, ok := lookup(head.EventName)
		if !ok {
			continue
		}
		crd, ok := fuseEvent(group, knowledge, trust)
		if !ok {
			continue
		}
		out = append(out, crd)
	}
	return out
}

func fuseEvent(group []Percept, knowledge *EventKnowledge, trust TrustTable) (CombinedReasonedData, bool) {
	head := group[0]
	crd := CombinedReasonedData{
		EventID:    head.EventID,
		EventName:  head.EventName,
		EventType:  head.EventType,
		Position:   head.Position,
		Time:       head.Time,
		Properties: make(map[string]PropertyBelief),
	}

	byProperty := make(map[string][]Percept)
	for _, p := range group {
		byProperty[p.Property] = append(byProperty[p.Property], p)
	}
	names := make([]string, 0, len(byProperty))
	for name := range byProperty {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		belief, ok := fuseProperty(byProperty[name], knowledge, trust)
		if !ok {
			continue
		}
		crd.Properties[name] = belief
		if len(crd.Properties) == 1 || prefer(belief.Confidence, belief.Sense, crd.Confidence, crd.Sense) {
			crd.Confidence = belief.Confidence
			crd.Sense = belief.Sense
		}
	}
	return crd, len(crd.Properties) > 0
}

func fuseProperty(percepts []Percept, knowledge *EventKnowledge, trust TrustTable) (PropertyBelief, bool) {
	var belief PropertyBelief
	agreeing := make(map[model.Sense]bool)
	for _, p := range percepts {
		pk, ok := knowledge.Property(p.Property, p.Sense)
		if !ok || !pk.Accepts(p.Value) {
			continue
		}
		confidence := trust.Of(p.Sense)
		if len(agreeing) == 0 || prefer(confidence, p.Sense, belief.Confidence, belief.Sense) {
			belief.Value = p.Value
			belief.Confidence = confidence
			belief.Sense = p.Sense
		}
		agreeing[p.Sense] = true
	}
	if len(agreeing) == 0 {
		return PropertyBelief{}, false
	}
	for _, s := range model.SensePreference {
		if agreeing[s] {
			belief.Senses = append(belief.Senses, s)
		}
	}
	return belief, true
}

func prefer(confidence float64, sense model.Sense, currentConfidence float64, current model.Sense) bool {
	if confidence != currentConfidence {
		return confidence > currentConfidence
	}
	return sense.Rank() < current.Rank()
}
