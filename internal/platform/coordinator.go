package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"situsim/internal/agent"
	"situsim/internal/logging"
	"situsim/internal/model"
	"situsim/internal/scape"
	"situsim/internal/storage"
)

type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhasePerceiving Phase = "PERCEIVING"
	PhaseDeciding   Phase = "DECIDING"
	PhaseCommitting Phase = "COMMITTING"
	PhaseStopped    Phase = "STOPPED"
)

var (
	ErrCoordinatorStopped = errors.New("coordinator stopped")
	// ErrCycleAborted is returned when a cycle is cancelled between phases.
	// Nothing computed in the aborted cycle is committed.
	ErrCycleAborted = errors.New("cycle aborted")
	errAgentPanic   = errors.New("agent panicked")
)

// Participant is one agent driven by the coordinator.
type Participant interface {
	ID() int
	Attach(p agent.Postman)
	Perceive(cell model.CellState)
	Execute() (model.Stimuli, error)
	Deliver(msg model.AgentMessage)
	// Abort undoes what Perceive and Execute changed in a cycle that will
	// not be committed.
	Abort()
}

type CoordinatorConfig struct {
	RunID   string
	World   *scape.World
	Workers int
	// Store receives failures, the run summary and, with PersistSnapshots,
	// a snapshot after every commit. Nil disables persistence.
	Store            storage.Store
	PersistSnapshots bool
	Spectators       []Spectator
	Logger           *slog.Logger
	Now              func() time.Time
}

// CycleReport describes one committed cycle. Time is the cycle that was
// perceived; the world clock is Time+1 afterwards.
type CycleReport struct {
	Time     int64
	Commit   scape.CommitReport
	Failures []model.AgentFailure
	Messages int
	Dropped  int
}

type RunReport struct {
	RunID     string
	Cycles    int64
	FinalTime int64
	Conflicts int
	Failures  int
	Messages  int
	Aborted   bool
}

// Coordinator drives the perceive/decide/commit cycle over a world. Agents
// run on a bounded worker pool and every phase ends at a barrier; the world
// is only written during COMMITTING.
type Coordinator struct {
	runID            string
	world            *scape.World
	workers          int
	store            storage.Store
	persistSnapshots bool
	spectators       []Spectator
	logger           *slog.Logger
	now              func() time.Time
	mail             *mailbag

	// stepMu serialises cycles.
	stepMu sync.Mutex

	mu           sync.RWMutex
	phase        Phase
	participants map[int]Participant
	totals       RunReport

	stopRequested atomic.Bool
}

func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.World == nil {
		return nil, fmt.Errorf("world is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	for i, s := range cfg.Spectators {
		if s == nil {
			return nil, fmt.Errorf("spectator is nil at index %d", i)
		}
	}
	logger := logging.OrDiscard(cfg.Logger).With("run", cfg.RunID)
	return &Coordinator{
		runID:            cfg.RunID,
		world:            cfg.World,
		workers:          cfg.Workers,
		store:            cfg.Store,
		persistSnapshots: cfg.PersistSnapshots,
		spectators:       append([]Spectator(nil), cfg.Spectators...),
		logger:           logger,
		now:              cfg.Now,
		mail:             newMailbag(),
		phase:            PhaseIdle,
		participants:     make(map[int]Participant),
		totals:           RunReport{RunID: cfg.RunID},
	}, nil
}

func (c *Coordinator) RunID() string { return c.runID }

func (c *Coordinator) World() *scape.World { return c.world }

func (c *Coordinator) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

func (c *Coordinator) setPhase(p Phase) {
	c.mu.Lock()
	prev := c.phase
	if prev != PhaseStopped {
		c.phase = p
	}
	c.mu.Unlock()
	if prev != p && prev != PhaseStopped {
		c.logger.Debug("phase", "from", prev, "to", p)
	}
}

// Register adds an agent. Its body must already be in the world; agents
// whose id is missing from the world are skipped each cycle.
func (c *Coordinator) Register(p Participant) error {
	if p == nil {
		return fmt.Errorf("participant is nil")
	}
	id := p.ID()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIdle {
		return fmt.Errorf("register agent %d: coordinator is %s", id, c.phase)
	}
	if _, exists := c.participants[id]; exists {
		return fmt.Errorf("duplicate agent: %d", id)
	}
	p.Attach(c.mail)
	c.participants[id] = p
	return nil
}

func (c *Coordinator) Unregister(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIdle {
		return false
	}
	p, ok := c.participants[id]
	if ok {
		p.Attach(nil)
		delete(c.participants, id)
	}
	return ok
}

// Participants returns the registered agent ids in ascending order.
func (c *Coordinator) Participants() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedIDsLocked()
}

func (c *Coordinator) sortedIDsLocked() []int {
	ids := make([]int, 0, len(c.participants))
	for id := range c.participants {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Stop moves the coordinator to STOPPED. A cycle in progress is aborted at
// its next phase boundary.
func (c *Coordinator) Stop() {
	c.stopRequested.Store(true)
	c.mu.Lock()
	if c.phase == PhaseIdle {
		c.phase = PhaseStopped
	}
	c.mu.Unlock()
}

func (c *Coordinator) Totals() RunReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totals
}

// Step runs exactly one cycle.
func (c *Coordinator) Step(ctx context.Context) (CycleReport, error) {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	if err := c.boundary(ctx); err != nil {
		return CycleReport{}, err
	}

	c.setPhase(PhasePerceiving)
	views, err := c.world.BuildViews()
	if err != nil {
		c.setPhase(PhaseIdle)
		c.logger.Error("snapshot build failed", "error", err)
		return CycleReport{}, fmt.Errorf("cycle %d: %w", c.world.Time(), err)
	}
	report := CycleReport{Time: views.Time}

	c.mu.RLock()
	ids := c.sortedIDsLocked()
	participants := make([]Participant, 0, len(ids))
	for _, id := range ids {
		participants = append(participants, c.participants[id])
	}
	c.mu.RUnlock()

	active := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if _, ok := views.Agents[p.ID()]; !ok {
			c.logger.Warn("agent has no body in the world", "agent", p.ID(), "time", views.Time)
			continue
		}
		active = append(active, p)
	}

	failed := make(map[int]bool)
	perceived := c.runPhase(active, func(p Participant) (model.Stimuli, error) {
		p.Perceive(views.Agents[p.ID()])
		return model.Stimuli{}, nil
	})
	for _, out := range perceived {
		if out.err != nil {
			failed[out.id] = true
			report.Failures = append(report.Failures, c.failure(views.Time, out.id, PhasePerceiving, out.err))
		}
	}

	if err := c.boundary(ctx); err != nil {
		c.rollback(active)
		return CycleReport{}, err
	}

	c.setPhase(PhaseDeciding)
	deciding := make([]Participant, 0, len(active))
	for _, p := range active {
		if !failed[p.ID()] {
			deciding = append(deciding, p)
		}
	}
	decided := c.runPhase(deciding, func(p Participant) (model.Stimuli, error) {
		return p.Execute()
	})

	if err := c.boundary(ctx); err != nil {
		c.rollback(active)
		return CycleReport{}, err
	}

	c.setPhase(PhaseCommitting)
	batch := make([]model.Stimuli, 0, len(active))
	for _, out := range decided {
		if out.err != nil {
			failed[out.id] = true
			report.Failures = append(report.Failures, c.failure(views.Time, out.id, PhaseDeciding, out.err))
			continue
		}
		batch = append(batch, out.stimuli)
	}
	for _, p := range active {
		if failed[p.ID()] {
			batch = append(batch, model.NewStimuli(views.Time, views.Home[p.ID()], p.ID()))
		}
	}

	commit, err := c.world.Commit(batch)
	if err != nil {
		c.mail.discard()
		c.rollback(active)
		c.setPhase(PhaseIdle)
		c.logger.Error("commit failed", "time", views.Time, "error", err)
		return CycleReport{}, fmt.Errorf("cycle %d: %w", views.Time, err)
	}
	report.Commit = commit
	report.Messages, report.Dropped = c.deliver(views, failed)

	c.mu.Lock()
	c.totals.Cycles++
	c.totals.FinalTime = commit.Time
	c.totals.Conflicts += len(commit.Conflicts)
	c.totals.Failures += len(report.Failures)
	c.totals.Messages += report.Messages
	c.mu.Unlock()

	err = c.publish(ctx, report)
	c.setPhase(PhaseIdle)
	if c.stopRequested.Load() {
		c.Stop()
	}
	c.logger.Debug("cycle committed",
		"time", report.Time,
		"applied", commit.Applied,
		"rejected", commit.Rejected,
		"conflicts", len(commit.Conflicts),
		"messages", report.Messages,
		"failures", len(report.Failures),
	)
	return report, err
}

// boundary is the only place a cycle can be cancelled.
func (c *Coordinator) boundary(ctx context.Context) error {
	if c.stopRequested.Load() {
		c.abort()
		c.mu.Lock()
		c.phase = PhaseStopped
		c.mu.Unlock()
		return ErrCoordinatorStopped
	}
	if err := ctx.Err(); err != nil {
		c.abort()
		return fmt.Errorf("%w: %w", ErrCycleAborted, err)
	}
	return nil
}

func (c *Coordinator) abort() {
	c.mail.discard()
	if p := c.Phase(); p != PhaseIdle && p != PhaseStopped {
		c.logger.Info("cycle aborted", "phase", p, "time", c.world.Time())
	}
	c.setPhase(PhaseIdle)
}

// rollback returns the participants of an uncommitted cycle to where they
// were before perceiving it.
func (c *Coordinator) rollback(participants []Participant) {
	for _, p := range participants {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn("agent rollback panicked", "agent", p.ID(), "panic", r)
				}
			}()
			p.Abort()
		}()
	}
}

type outcome struct {
	id      int
	stimuli model.Stimuli
	err     error
}

// runPhase runs work for every participant on the worker pool and returns
// once all of them are done. Outcomes are ordered by agent id.
func (c *Coordinator) runPhase(participants []Participant, work func(Participant) (model.Stimuli, error)) []outcome {
	if len(participants) == 0 {
		return nil
	}
	type job struct {
		idx int
		p   Participant
	}

	jobs := make(chan job)
	results := make([]outcome, len(participants))

	workerCount := c.workers
	if workerCount > len(participants) {
		workerCount = len(participants)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = safeRun(j.p, work)
			}
		}()
	}

	for i, p := range participants {
		jobs <- job{idx: i, p: p}
	}
	close(jobs)
	wg.Wait()
	return results
}

func safeRun(p Participant, work func(Participant) (model.Stimuli, error)) (out outcome) {
	out.id = p.ID()
	defer func() {
		if r := recover(); r != nil {
			out.stimuli = model.Stimuli{}
			out.err = fmt.Errorf("%w: %v", errAgentPanic, r)
		}
	}()
	out.stimuli, out.err = work(p)
	return out
}

func (c *Coordinator) failure(t int64, id int, phase Phase, err error) model.AgentFailure {
	c.logger.Warn("agent failed", "agent", id, "time", t, "phase", phase, "error", err)
	return model.AgentFailure{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           c.runID,
		Time:            t,
		AgentID:         id,
		Phase:           string(phase),
		Error:           err.Error(),
	}
}

// deliver routes the cycle's mail. Senders are handled in ascending id
// order, each sender's messages in dispatch order. A broadcast reaches every
// registered agent the sender's view contained, except the sender.
func (c *Coordinator) deliver(views scape.Views, failed map[int]bool) (delivered, dropped int) {
	senders, batches := c.mail.drain()

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, from := range senders {
		if failed[from] {
			dropped += len(batches[from])
			continue
		}
		for _, msg := range batches[from] {
			if msg.IsBroadcast() {
				view, ok := views.Agents[from]
				if !ok {
					dropped++
					continue
				}
				for _, a := range view.Agents() {
					if a.ID == from {
						continue
					}
					if p, ok := c.participants[a.ID]; ok {
						p.Deliver(msg)
						delivered++
					}
				}
				continue
			}
			p, ok := c.participants[msg.To]
			if !ok {
				c.logger.Warn("message dropped", "from", from, "to", msg.To, "id", msg.ID)
				dropped++
				continue
			}
			p.Deliver(msg)
			delivered++
		}
	}
	return delivered, dropped
}

// publish hands the committed state to spectators and the store.
func (c *Coordinator) publish(ctx context.Context, report CycleReport) error {
	snapshot := c.world.Snapshot(c.runID)
	snapshot.VersionedRecord = storage.CurrentVersion()
	for _, s := range c.spectators {
		s.Observe(snapshot)
	}
	if c.store == nil {
		return nil
	}
	// Persistence happens after the commit; the cycle itself is not undone.
	for _, f := range report.Failures {
		if err := c.store.SaveAgentFailure(ctx, f); err != nil {
			return fmt.Errorf("save agent failure: %w", err)
		}
	}
	if c.persistSnapshots {
		if err := c.store.SaveSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("save snapshot %d: %w", snapshot.Time, err)
		}
	}
	return nil
}

// Run executes up to cycles cycles and records a run summary. It stops early
// on a fatal cycle error, on Stop or when ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, cycles int64) (RunReport, error) {
	if cycles < 0 {
		return RunReport{}, fmt.Errorf("cycles must be non-negative: %d", cycles)
	}
	if c.Phase() == PhaseStopped {
		return c.Totals(), ErrCoordinatorStopped
	}
	c.logger.Info("run started", "cycles", cycles, "agents", len(c.Participants()), "workers", c.workers)

	var runErr error
	for i := int64(0); i < cycles; i++ {
		if _, err := c.Step(ctx); err != nil {
			runErr = err
			break
		}
	}

	report := c.Totals()
	if errors.Is(runErr, ErrCycleAborted) || errors.Is(runErr, ErrCoordinatorStopped) {
		report.Aborted = true
	}
	c.mu.Lock()
	c.totals.Aborted = report.Aborted
	c.mu.Unlock()

	if err := c.saveSummary(report); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		c.logger.Warn("run ended early", "cycles", report.Cycles, "error", runErr)
	} else {
		c.logger.Info("run finished", "cycles", report.Cycles, "time", report.FinalTime, "conflicts", report.Conflicts, "failures", report.Failures)
	}
	return report, runErr
}

func (c *Coordinator) saveSummary(report RunReport) error {
	if c.store == nil {
		return nil
	}
	c.mu.RLock()
	agents := len(c.participants)
	c.mu.RUnlock()
	summary := model.RunSummary{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           report.RunID,
		CreatedAtUTC:    c.now().UTC().Format(time.RFC3339),
		Cycles:          report.Cycles,
		FinalTime:       report.FinalTime,
		Agents:          agents,
		Conflicts:       report.Conflicts,
		Failures:        report.Failures,
		Messages:        report.Messages,
		Aborted:         report.Aborted,
	}
	// The run context may already be cancelled; the summary is still written.
	if err := c.store.SaveRunSummary(context.Background(), summary); err != nil {
		return fmt.Errorf("save run summary: %w", err)
	}
	return nil
}
