package perception

import (
	"errors"
	"fmt"
	"math"

	"situsim/internal/evidence"
	"situsim/internal/model"
)

var ErrInvalidSenseConfig = errors.New("perception: invalid sense configuration")

type VisionConfig struct {
	FOV             float64 `json:"fov" yaml:"fov"`
	VisibleDistance float64 `json:"visible_distance" yaml:"visible_distance"`
}

type AudioConfig struct {
	SoundRadius float64 `json:"sound_radius" yaml:"sound_radius"`
	MinAudible  float64 `json:"min_audible" yaml:"min_audible"`
}

type SmellConfig struct {
	SmellRadius float64 `json:"smell_radius" yaml:"smell_radius"`
}

type Config struct {
	Vision VisionConfig        `json:"vision" yaml:"vision"`
	Audio  AudioConfig         `json:"audio" yaml:"audio"`
	Smell  SmellConfig         `json:"smell" yaml:"smell"`
	Trust  evidence.TrustTable `json:"trust" yaml:"trust"`
}

func DefaultConfig() Config {
	return Config{
		Vision: VisionConfig{FOV: 90, VisibleDistance: 10},
		Audio:  AudioConfig{SoundRadius: 15, MinAudible: 0.1},
		Smell:  SmellConfig{SmellRadius: 4},
		Trust:  evidence.DefaultTrust(),
	}
}

// Range is the farthest any sense can reach.
func (c Config) Range() float64 {
	return math.Max(c.Vision.VisibleDistance, math.Max(c.Audio.SoundRadius, c.Smell.SmellRadius))
}

func (c Config) Validate() error {
	if c.Vision.FOV <= 0 || c.Vision.FOV > 360 || math.IsNaN(c.Vision.FOV) {
		return fmt.Errorf("%w: fov must be within (0,360]: %v", ErrInvalidSenseConfig, c.Vision.FOV)
	}
	for name, v := range map[string]float64{
		"visible_distance": c.Vision.VisibleDistance,
		"sound_radius":     c.Audio.SoundRadius,
		"min_audible":      c.Audio.MinAudible,
		"smell_radius":     c.Smell.SmellRadius,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be a finite value >= 0: %v", ErrInvalidSenseConfig, name, v)
		}
	}
	if err := c.Trust.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSenseConfig, err)
	}
	return nil
}

// buffer collects one sensor's detections for the current cycle.
type buffer struct {
	agents   []model.AgentState
	objects  []model.EnvObjectState
	percepts []evidence.Percept
}

func (b *buffer) reset() {
	b.agents = b.agents[:0]
	b.objects = b.objects[:0]
	b.percepts = b.percepts[:0]
}

// Sensor tests detectability of cell contents through one modality.
type Sensor interface {
	Sense() model.Sense
	Detects(self model.AgentState, pos model.Vec3, emission float64, target Target, cell model.CellState) bool
}

type VisionSensor struct {
	cfg        VisionConfig
	visibility VisibilityAlgorithm
}

func (s VisionSensor) Sense() model.Sense { return model.SenseVision }

func (s VisionSensor) Detects(self model.AgentState, pos model.Vec3, _ float64, target Target, cell model.CellState) bool {
	if self.Pose.Position.Dist(pos) > s.cfg.VisibleDistance {
		return false
	}
	if !InFieldOfView(self.Pose, pos, s.cfg.FOV) {
		return false
	}
	return s.visibility.Visible(self, target, cell)
}

// InFieldOfView applies a horizontal view cone around the facing direction on
// the X/Z plane. A target on the observer's vertical axis, or an observer with
// no horizontal facing, counts as in view.
func InFieldOfView(pose model.Pose, target model.Vec3, fov float64) bool {
	if fov >= 360 {
		return true
	}
	dx := target.X - pose.Position.X
	dz := target.Z - pose.Position.Z
	dl := math.Hypot(dx, dz)
	fl := math.Hypot(pose.Facing.X, pose.Facing.Z)
	if dl == 0 || fl == 0 {
		return true
	}
	cos := (dx*pose.Facing.X + dz*pose.Facing.Z) / (dl * fl)
	cos = math.Max(-1, math.Min(1, cos))
	angle := math.Acos(cos) * 180 / math.Pi
	return angle <= fov/2
}

type AudioSensor struct {
	cfg AudioConfig
}

func (s AudioSensor) Sense() model.Sense { return model.SenseAudio }

func (s AudioSensor) Detects(self model.AgentState, pos model.Vec3, emission float64, _ Target, _ model.CellState) bool {
	return self.Pose.Position.Dist(pos) <= s.cfg.SoundRadius && emission >= s.cfg.MinAudible
}

type SmellSensor struct {
	cfg SmellConfig
}

func (s SmellSensor) Sense() model.Sense { return model.SenseSmell }

func (s SmellSensor) Detects(self model.AgentState, pos model.Vec3, _ float64, _ Target, _ model.CellState) bool {
	return self.Pose.Position.Dist(pos) <= s.cfg.SmellRadius
}
