// Package platform owns a simulation's lifetime: the Polis container that
// holds the store and support modules, and the Coordinator that drives
// cycles over a world.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"situsim/internal/logging"
	"situsim/internal/storage"
)

type Config struct {
	Store          storage.Store
	SupportModules []SupportModule
	Logger         *slog.Logger
}

type SupportModule interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

// Polis is the simulation-state container. It is created by its owner,
// initialised once and torn down with Stop; there is no process-wide
// instance.
type Polis struct {
	store  storage.Store
	logger *slog.Logger

	mu             sync.RWMutex
	supportModules map[string]SupportModule
	moduleOrder    []string
	runs           map[string]*Coordinator
	started        bool
	lastStopReason StopReason

	config Config
}

func NewPolis(cfg Config) *Polis {
	return &Polis{
		store:          cfg.Store,
		logger:         logging.OrDiscard(cfg.Logger),
		supportModules: make(map[string]SupportModule),
		runs:           make(map[string]*Coordinator),
		config:         cfg,
		lastStopReason: StopReasonNormal,
	}
}

// Init prepares the store and starts support modules in order. If any module
// fails, the ones already started are stopped in reverse order.
func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}

	started := make([]SupportModule, 0, len(p.config.SupportModules))
	fail := func(err error) error {
		stopSupportModules(ctx, started)
		p.supportModules = make(map[string]SupportModule)
		p.moduleOrder = nil
		return err
	}
	for i, module := range p.config.SupportModules {
		if module == nil {
			return fail(fmt.Errorf("support module is nil at index %d", i))
		}
		name := module.Name()
		if name == "" {
			return fail(fmt.Errorf("support module name is required at index %d", i))
		}
		if _, exists := p.supportModules[name]; exists {
			return fail(fmt.Errorf("duplicate support module: %s", name))
		}
		if err := module.Start(ctx); err != nil {
			return fail(fmt.Errorf("start support module %s: %w", name, err))
		}
		p.supportModules[name] = module
		p.moduleOrder = append(p.moduleOrder, name)
		started = append(started, module)
	}

	p.started = true
	p.logger.Debug("polis started", "modules", len(started))
	return nil
}

// Reset stops everything, clears a resettable store and starts again.
func (p *Polis) Reset(ctx context.Context) error {
	_ = p.StopWithReason(StopReasonShutdown)
	if resetter, ok := p.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	return p.Init(ctx)
}

func (p *Polis) Store() storage.Store { return p.store }

// NewCoordinator creates a coordinator bound to this polis: it persists to
// the polis store and publishes to every support module that is a
// Spectator. The run stays registered until Release or Stop.
func (p *Polis) NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil, fmt.Errorf("polis is not initialized")
	}
	if cfg.Store == nil {
		cfg.Store = p.store
	}
	if cfg.Logger == nil {
		cfg.Logger = p.logger
	}
	for _, name := range p.moduleOrder {
		if s, ok := p.supportModules[name].(Spectator); ok {
			cfg.Spectators = append(cfg.Spectators, s)
		}
	}
	c, err := NewCoordinator(cfg)
	if err != nil {
		return nil, err
	}
	if _, exists := p.runs[c.RunID()]; exists {
		return nil, fmt.Errorf("run already active: %s", c.RunID())
	}
	p.runs[c.RunID()] = c
	return c, nil
}

// Release forgets a finished run.
func (p *Polis) Release(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func (p *Polis) StopRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	c, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	c.Stop()
	return nil
}

func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Polis) SupportModule(name string) (SupportModule, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.supportModules[name]
	return m, ok
}

func (p *Polis) ActiveSupportModules() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.supportModules))
	for name := range p.supportModules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Polis) Stop() {
	_ = p.StopWithReason(StopReasonNormal)
}

func (p *Polis) Shutdown() {
	_ = p.StopWithReason(StopReasonShutdown)
}

// StopWithReason stops every active run and then the support modules in
// reverse start order.
func (p *Polis) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if !isValidStopReason(reason) {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.runs {
		c.Stop()
	}
	modules := make([]SupportModule, 0, len(p.moduleOrder))
	for _, name := range p.moduleOrder {
		modules = append(modules, p.supportModules[name])
	}
	for i := len(modules) - 1; i >= 0; i-- {
		if withReason, ok := modules[i].(reasonAwareSupportModule); ok {
			_ = withReason.StopWithReason(context.Background(), reason)
		} else {
			_ = modules[i].Stop(context.Background())
		}
	}

	if p.started {
		p.logger.Debug("polis stopped", "reason", reason)
	}
	p.started = false
	p.lastStopReason = reason
	p.supportModules = make(map[string]SupportModule)
	p.moduleOrder = nil
	p.runs = make(map[string]*Coordinator)
	return nil
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) LastStopReason() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStopReason
}

type reasonAwareSupportModule interface {
	SupportModule
	StopWithReason(ctx context.Context, reason StopReason) error
}

func isValidStopReason(reason StopReason) bool {
	switch reason {
	case StopReasonNormal, StopReasonShutdown:
		return true
	default:
		return false
	}
}

func stopSupportModules(ctx context.Context, modules []SupportModule) {
	for i := len(modules) - 1; i >= 0; i-- {
		_ = modules[i].Stop(ctx)
	}
}
