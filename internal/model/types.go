package model

import (
	"fmt"
	"math"
	"strings"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Vec3 is a world position or direction. Y is up; agents move on the X/Z plane.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(f float64) Vec3 { return Vec3{v.X * f, v.Y * f, v.Z * f} }

func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Len() }

// Normalized returns the unit vector, or the zero vector when v has no length.
func (v Vec3) Normalized() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

func (v Vec3) IsFinite() bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Pose is a position plus the direction the entity faces.
type Pose struct {
	Position Vec3 `json:"position" yaml:"position"`
	Facing   Vec3 `json:"facing" yaml:"facing"`
}

// Sense is a perception modality.
type Sense int

const (
	SenseVision Sense = iota
	SenseAudio
	SenseSmell
)

// SensePreference lists senses from most to least preferred when fused
// confidences tie.
var SensePreference = []Sense{SenseVision, SenseAudio, SenseSmell}

func (s Sense) String() string {
	switch s {
	case SenseVision:
		return "vision"
	case SenseAudio:
		return "audio"
	case SenseSmell:
		return "smell"
	default:
		return fmt.Sprintf("sense(%d)", int(s))
	}
}

// Rank orders senses by preference; lower is preferred.
func (s Sense) Rank() int {
	for i, candidate := range SensePreference {
		if candidate == s {
			return i
		}
	}
	return len(SensePreference)
}

func ParseSense(value string) (Sense, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "vision":
		return SenseVision, nil
	case "audio":
		return SenseAudio, nil
	case "smell":
		return SenseSmell, nil
	default:
		return 0, fmt.Errorf("unknown sense: %q", value)
	}
}

// SenseFlags are the perceptor capabilities an agent carries.
type SenseFlags struct {
	Vision bool `json:"vision" yaml:"vision"`
	Audio  bool `json:"audio" yaml:"audio"`
	Smell  bool `json:"smell" yaml:"smell"`
}

func (f SenseFlags) Has(s Sense) bool {
	switch s {
	case SenseVision:
		return f.Vision
	case SenseAudio:
		return f.Audio
	case SenseSmell:
		return f.Smell
	default:
		return false
	}
}

type AgentType string

// Broadcast addresses every agent in the sender's cell neighbourhood. Agent
// ids start at 1.
const Broadcast = 0

type AgentState struct {
	ID               int        `json:"id"`
	Type             AgentType  `json:"type"`
	Pose             Pose       `json:"pose"`
	Senses           SenseFlags `json:"senses"`
	Radius           float64    `json:"radius"`
	AcousticEmission float64    `json:"acoustic_emission"`
}

type EnvObjectState struct {
	ID               int     `json:"id"`
	Type             string  `json:"type"`
	Pose             Pose    `json:"pose"`
	Scale            Vec3    `json:"scale"`
	Owner            int     `json:"owner,omitempty"`
	Obstacle         bool    `json:"obstacle"`
	AcousticEmission float64 `json:"acoustic_emission"`
}

// Event is an active environmental occurrence. Properties carry the sensed
// values keyed by property type. An empty Modalities list means every sense
// can detect the event.
type Event struct {
	ID               int                `json:"id"`
	Name             string             `json:"name"`
	Type             string             `json:"type"`
	Position         Vec3               `json:"position"`
	Properties       map[string]float64 `json:"properties"`
	Modalities       []Sense            `json:"modalities,omitempty"`
	AcousticEmission float64            `json:"acoustic_emission"`
	Source           int                `json:"source,omitempty"`
	CreatedAt        int64              `json:"created_at"`
	ExpiresAt        int64              `json:"expires_at,omitempty"`
}

func (e Event) DetectableBy(s Sense) bool {
	if len(e.Modalities) == 0 {
		return true
	}
	for _, m := range e.Modalities {
		if m == s {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so snapshot holders never share property maps.
func (e Event) Clone() Event {
	out := e
	if e.Properties != nil {
		out.Properties = make(map[string]float64, len(e.Properties))
		for k, v := range e.Properties {
			out.Properties[k] = v
		}
	}
	out.Modalities = append([]Sense(nil), e.Modalities...)
	return out
}

type CollidableType string

const (
	CollidableAgent  CollidableType = "AGENT"
	CollidableEnvObj CollidableType = "ENVOBJ"
)

// Collision is a transient per-cycle contact fact.
type Collision struct {
	CollidableID   int            `json:"collidable_id"`
	CollidableType CollidableType `json:"collidable_type"`
}
