// Package config loads simulator configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"situsim/internal/knowledge"
	"situsim/internal/model"
	"situsim/internal/perception"
)

// Config is the full simulator configuration.
type Config struct {
	Simulation SimulationConfig  `json:"simulation" yaml:"simulation"`
	Perception perception.Config `json:"perception" yaml:"perception"`
	Capacity   CapacityConfig    `json:"capacity" yaml:"capacity"`
	Behaviour  BehaviourConfig   `json:"behaviour" yaml:"behaviour"`
	Store      StoreConfig       `json:"store" yaml:"store"`
	Logging    LoggingConfig     `json:"logging" yaml:"logging"`
	Scenario   Scenario          `json:"scenario" yaml:"scenario"`
}

type SimulationConfig struct {
	// Cycles is how many cycles `run` executes.
	Cycles int64 `json:"cycles" yaml:"cycles"`
	// Workers bounds the per-phase worker pool.
	Workers int `json:"workers" yaml:"workers"`
	// CellSize is the side of one square partition cell on the X/Z plane.
	CellSize float64 `json:"cell_size" yaml:"cell_size"`
	// BorderMargin is how close to a cell edge an agent must be before it
	// also perceives the neighbouring cell. It is raised to the perception
	// range when smaller; see Config.CellMargin.
	BorderMargin float64 `json:"border_margin" yaml:"border_margin"`
	// MaxStep caps the distance one move may cover. Zero disables the cap.
	MaxStep float64 `json:"max_step" yaml:"max_step"`
	// PersistSnapshots stores a world snapshot after every commit.
	PersistSnapshots bool `json:"persist_snapshots" yaml:"persist_snapshots"`
}

type CapacityConfig struct {
	Knowledge knowledge.Capacities `json:"knowledge" yaml:"knowledge"`
	Inbox     int                  `json:"inbox" yaml:"inbox"`
	Outbox    int                  `json:"outbox" yaml:"outbox"`
}

// BehaviourConfig tunes the built-in agent archetypes.
type BehaviourConfig struct {
	Speed         float64 `json:"speed" yaml:"speed"`
	Reach         float64 `json:"reach" yaml:"reach"`
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
	GoalTTL       int64   `json:"goal_ttl" yaml:"goal_ttl"`
	AlertLifetime int64   `json:"alert_lifetime" yaml:"alert_lifetime"`
	AlertLoudness float64 `json:"alert_loudness" yaml:"alert_loudness"`
}

type StoreConfig struct {
	// Kind is "memory" or "sqlite".
	Kind   string `json:"kind" yaml:"kind"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LoggingConfig struct {
	// Level is one of "warn", "info" (default), "debug" or "trace".
	Level string `json:"level" yaml:"level"`
}

// Default returns the configuration of the built-in demo world.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Cycles:           20,
			Workers:          4,
			CellSize:         16,
			BorderMargin:     4,
			MaxStep:          1.5,
			PersistSnapshots: true,
		},
		Perception: perception.DefaultConfig(),
		Capacity: CapacityConfig{
			Knowledge: knowledge.DefaultCapacities(),
			Inbox:     32,
			Outbox:    32,
		},
		Behaviour: BehaviourConfig{
			Speed:         1,
			Reach:         1,
			MinConfidence: 0.5,
			GoalTTL:       20,
			AlertLifetime: 2,
			AlertLoudness: 1,
		},
		Store: StoreConfig{
			Kind: "memory",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Scenario: DefaultScenario(),
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then environment overrides.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}
	if err := ApplyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// CellMargin is the border margin the partition is built with: the
// configured margin, but never less than the farthest sense reaches, so a
// target within range is perceived wherever the cell edges fall.
func (c *Config) CellMargin() float64 {
	return math.Max(c.Simulation.BorderMargin, c.Perception.Range())
}

// Validate fails fast on anything the simulator would reject at construction.
func (c *Config) Validate() error {
	sim := c.Simulation
	if sim.Cycles < 0 {
		return fmt.Errorf("cycles must be non-negative, got %d", sim.Cycles)
	}
	if sim.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", sim.Workers)
	}
	if !(sim.CellSize > 0) || math.IsInf(sim.CellSize, 0) {
		return fmt.Errorf("cell_size must be positive, got %v", sim.CellSize)
	}
	if !(sim.BorderMargin >= 0) || math.IsInf(sim.BorderMargin, 0) {
		return fmt.Errorf("border_margin must be non-negative, got %v", sim.BorderMargin)
	}
	if !(sim.MaxStep >= 0) {
		return fmt.Errorf("max_step must be non-negative, got %v", sim.MaxStep)
	}

	if err := c.Perception.Validate(); err != nil {
		return err
	}

	caps := c.Capacity
	for name, v := range map[string]int{
		"event_knowledge":   caps.Knowledge.EventKnowledge,
		"perceived_agents":  caps.Knowledge.PerceivedAgents,
		"perceived_objects": caps.Knowledge.PerceivedObjects,
		"events_per_cycle":  caps.Knowledge.EventsPerCycle,
		"event_history":     caps.Knowledge.EventHistory,
		"goals":             caps.Knowledge.Goals,
		"inbox":             caps.Inbox,
		"outbox":            caps.Outbox,
	} {
		if v <= 0 {
			return fmt.Errorf("capacity %s must be positive, got %d", name, v)
		}
	}

	b := c.Behaviour
	if b.Speed < 0 || b.Reach < 0 || b.AlertLoudness < 0 {
		return fmt.Errorf("speed, reach and alert_loudness must be non-negative")
	}
	if b.MinConfidence < 0 || b.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %v", b.MinConfidence)
	}
	if b.GoalTTL < 0 || b.AlertLifetime < 0 {
		return fmt.Errorf("goal_ttl and alert_lifetime must be non-negative")
	}

	switch c.Store.Kind {
	case "", "memory":
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("sqlite store requires db_path")
		}
	default:
		return fmt.Errorf("invalid store kind: %s (valid: memory, sqlite)", c.Store.Kind)
	}

	validLevels := map[string]bool{"warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace)", c.Logging.Level)
	}

	return c.Scenario.Validate()
}

// ApplyEnvOverrides applies SITUSIM_* environment variables on top of c.
func ApplyEnvOverrides(c *Config) error {
	if v := os.Getenv("SITUSIM_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SITUSIM_WORKERS: %w", err)
		}
		c.Simulation.Workers = n
	}
	if v := os.Getenv("SITUSIM_CYCLES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SITUSIM_CYCLES: %w", err)
		}
		c.Simulation.Cycles = n
	}
	if v := os.Getenv("SITUSIM_STORE"); v != "" {
		c.Store.Kind = v
	}
	if v := os.Getenv("SITUSIM_DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("SITUSIM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// ParseSenses converts sense names into model senses.
func ParseSenses(names []string) ([]model.Sense, error) {
	out := make([]model.Sense, 0, len(names))
	for _, name := range names {
		s, err := model.ParseSense(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
