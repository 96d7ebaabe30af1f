package evidence

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"situsim/internal/model"
)

func TestEventPropertyKnowledgeDerivedFields(t *testing.T) {
	cases := []struct{ min, max float64 }{
		{0.8, 1.0},
		{1.0, 0.8},
		{-3, 7},
		{2, 2},
		{-0.25, -0.125},
	}
	for _, tc := range cases {
		k, err := NewEventPropertyKnowledge("heat", model.SenseVision, tc.min, tc.max)
		if err != nil {
			t.Fatalf("new knowledge %+v: %v", tc, err)
		}
		wantAlpha := (tc.min + tc.max) / 2
		wantR := math.Abs(tc.min - tc.max)
		if k.Alpha() != wantAlpha || k.Range() != wantR || k.Epsilon() != wantR/2 {
			t.Fatalf("min=%v max=%v: alpha=%v R=%v eps=%v", tc.min, tc.max, k.Alpha(), k.Range(), k.Epsilon())
		}
	}
}

func TestEventPropertyKnowledgeRejectsNonFiniteRange(t *testing.T) {
	if _, err := NewEventPropertyKnowledge("heat", model.SenseAudio, math.NaN(), 1); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := NewEventPropertyKnowledge("heat", model.SenseAudio, 0, math.Inf(1)); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestSetBoundsDoesNotRecomputeUntilAsked(t *testing.T) {
	k, _ := NewEventPropertyKnowledge("heat", model.SenseVision, 0, 1)
	k.SetMin(2)
	k.SetMax(4)
	if k.Alpha() != 0.5 || k.Epsilon() != 0.5 {
		t.Fatalf("derived fields changed on mutation: alpha=%v eps=%v", k.Alpha(), k.Epsilon())
	}
	k.Recompute()
	if k.Alpha() != 3 || k.Range() != 2 || k.Epsilon() != 1 {
		t.Fatalf("unexpected recomputed fields: alpha=%v R=%v eps=%v", k.Alpha(), k.Range(), k.Epsilon())
	}
}

func TestEventKnowledgeRejectsDuplicateKeys(t *testing.T) {
	ek := NewEventKnowledge("fire", "hazard")
	p1, _ := NewEventPropertyKnowledge("heat", model.SenseVision, 0, 1)
	p2, _ := NewEventPropertyKnowledge("heat", model.SenseVision, 0, 2)
	p3, _ := NewEventPropertyKnowledge("heat", model.SenseSmell, 0, 2)
	if err := ek.AddProperty(p1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ek.AddProperty(p2); err == nil {
		t.Fatal("expected duplicate key error")
	}
	if err := ek.AddProperty(p3); err != nil {
		t.Fatalf("add other sense: %v", err)
	}
	if got := len(ek.Properties()); got != 2 {
		t.Fatalf("expected 2 properties, got %d", got)
	}
}

func fireKnowledge(t *testing.T) *EventKnowledge {
	t.Helper()
	ek := NewEventKnowledge("fire", "hazard")
	for _, s := range model.SensePreference {
		p, err := NewEventPropertyKnowledge("heat", s, 0.8, 1.0)
		if err != nil {
			t.Fatalf("new property: %v", err)
		}
		if err := ek.AddProperty(p); err != nil {
			t.Fatalf("add property: %v", err)
		}
	}
	return ek
}

func TestFuseTrustWeighting(t *testing.T) {
	ek := fireKnowledge(t)
	lookup := func(name string) (*EventKnowledge, bool) {
		if name == ek.Name() {
			return ek, true
		}
		return nil, false
	}
	trust := DefaultTrust()

	cases := []struct {
		name       string
		percepts   []Percept
		wantCount  int
		wantConf   float64
		wantSense  model.Sense
		wantSenses []model.Sense
	}{
		{
			name:       "vision only",
			percepts:   []Percept{{EventID: 1, EventName: "fire", Property: "heat", Value: 0.9, Sense: model.SenseVision}},
			wantCount:  1,
			wantConf:   0.95,
			wantSense:  model.SenseVision,
			wantSenses: []model.Sense{model.SenseVision},
		},
		{
			name: "vision out of window, audio agrees",
			percepts: []Percept{
				{EventID: 1, EventName: "fire", Property: "heat", Value: 0.2, Sense: model.SenseVision},
				{EventID: 1, EventName: "fire", Property: "heat", Value: 0.85, Sense: model.SenseAudio},
			},
			wantCount:  1,
			wantConf:   0.70,
			wantSense:  model.SenseAudio,
			wantSenses: []model.Sense{model.SenseAudio},
		},
		{
			name: "all senses agree",
			percepts: []Percept{
				{EventID: 1, EventName: "fire", Property: "heat", Value: 0.9, Sense: model.SenseSmell},
				{EventID: 1, EventName: "fire", Property: "heat", Value: 0.9, Sense: model.SenseAudio},
				{EventID: 1, EventName: "fire", Property: "heat", Value: 0.9, Sense: model.SenseVision},
			},
			wantCount:  1,
			wantConf:   0.95,
			wantSense:  model.SenseVision,
			wantSenses: []model.Sense{model.SenseVision, model.SenseAudio, model.SenseSmell},
		},
		{
			name:      "no sense agrees",
			percepts:  []Percept{{EventID: 1, EventName: "fire", Property: "heat", Value: 5, Sense: model.SenseVision}},
			wantCount: 0,
		},
		{
			name:      "unknown event",
			percepts:  []Percept{{EventID: 2, EventName: "flood", Property: "heat", Value: 0.9, Sense: model.SenseVision}},
			wantCount: 0,
		},
	}

	for _, tc := range cases {
		out := Fuse(tc.percepts, lookup, trust)
		if len(out) != tc.wantCount {
			t.Fatalf("%s: got %d results, want %d", tc.name, len(out), tc.wantCount)
		}
		if tc.wantCount == 0 {
			continue
		}
		if out[0].Confidence != tc.wantConf || out[0].Sense != tc.wantSense {
			t.Fatalf("%s: confidence=%v sense=%v", tc.name, out[0].Confidence, out[0].Sense)
		}
		if got := out[0].Properties["heat"].Senses; !reflect.DeepEqual(got, tc.wantSenses) {
			t.Fatalf("%s: agreeing senses=%v want %v", tc.name, got, tc.wantSenses)
		}
	}
}

func TestFuseEqualTrustPrefersVision(t *testing.T) {
	ek := fireKnowledge(t)
	lookup := func(string) (*EventKnowledge, bool) { return ek, true }
	trust := TrustTable{Vision: 0.5, Audio: 0.5, Smell: 0.5}

	out := Fuse([]Percept{
		{EventID: 1, EventName: "fire", Property: "heat", Value: 0.81, Sense: model.SenseSmell},
		{EventID: 1, EventName: "fire", Property: "heat", Value: 0.99, Sense: model.SenseVision},
	}, lookup, trust)
	if len(out) != 1 {
		t.Fatalf("expected one result, got %d", len(out))
	}
	if out[0].Sense != model.SenseVision || out[0].Properties["heat"].Value != 0.99 {
		t.Fatalf("expected vision to win the tie, got %+v", out[0])
	}
}

func TestTrustValidate(t *testing.T) {
	if err := DefaultTrust().Validate(); err != nil {
		t.Fatalf("default trust invalid: %v", err)
	}
	if err := (TrustTable{Vision: 1.2}).Validate(); err == nil {
		t.Fatal("expected error for trust above 1")
	}
}
