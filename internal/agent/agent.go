// Package agent composes the knowledge, interaction, planning and task
// modules into the per-cycle pipeline: perceive, generate stimuli, dispatch.
package agent

import (
	"errors"
	"fmt"
	"log/slog"

	"situsim/internal/evidence"
	"situsim/internal/knowledge"
	"situsim/internal/logging"
	"situsim/internal/model"
	"situsim/internal/perception"
)

// ErrNotPerceived is returned when stimuli are requested in a cycle the agent
// has not perceived.
var ErrNotPerceived = errors.New("agent executed without perceiving this cycle")

type Agent struct {
	knowledge   *knowledge.Module
	interaction Interaction
	planning    Planning
	task        TaskModule
	logger      *slog.Logger
	perceived   bool
	checkpoint  *knowledge.Checkpoint
}

type options struct {
	capacities     knowledge.Capacities
	perception     perception.Config
	visibility     perception.VisibilityAlgorithm
	inboxCapacity  int
	outboxCapacity int
	planning       Planning
	task           TaskModule
	logger         *slog.Logger
}

type Option func(*options)

func WithCapacities(c knowledge.Capacities) Option {
	return func(o *options) { o.capacities = c }
}

func WithPerception(cfg perception.Config) Option {
	return func(o *options) { o.perception = cfg }
}

func WithVisibility(v perception.VisibilityAlgorithm) Option {
	return func(o *options) { o.visibility = v }
}

func WithMailboxes(inbox, outbox int) Option {
	return func(o *options) {
		o.inboxCapacity = inbox
		o.outboxCapacity = outbox
	}
}

func WithPlanning(p Planning) Option {
	return func(o *options) { o.planning = p }
}

func WithTask(t TaskModule) Option {
	return func(o *options) { o.task = t }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New builds an agent around its initial self state. Ids must be positive;
// zero is reserved for broadcast addressing.
func New(self model.AgentState, opts ...Option) (*Agent, error) {
	if self.ID <= 0 {
		return nil, fmt.Errorf("agent id must be positive: %d", self.ID)
	}
	o := options{
		capacities:     knowledge.DefaultCapacities(),
		perception:     perception.DefaultConfig(),
		inboxCapacity:  32,
		outboxCapacity: 32,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrDiscard(o.logger).With("agent", self.ID)

	k, err := knowledge.New(self, o.capacities)
	if err != nil {
		return nil, fmt.Errorf("agent %d: %w", self.ID, err)
	}
	popts := []perception.Option{perception.WithLogger(logger)}
	if o.visibility != nil {
		popts = append(popts, perception.WithVisibility(o.visibility))
	}
	p, err := perception.New(o.perception, popts...)
	if err != nil {
		return nil, fmt.Errorf("agent %d: %w", self.ID, err)
	}
	interaction, err := NewInteractionModule(p, o.inboxCapacity, o.outboxCapacity, logger)
	if err != nil {
		return nil, fmt.Errorf("agent %d mailboxes: %w", self.ID, err)
	}
	if o.planning == nil {
		o.planning = NewGoalPlanner(DefaultExecutor().Reach, logger)
	}
	if o.task == nil {
		o.task = DefaultExecutor()
	}
	return &Agent{
		knowledge:   k,
		interaction: interaction,
		planning:    o.planning,
		task:        o.task,
		logger:      logger,
	}, nil
}

func (a *Agent) ID() int { return a.knowledge.ID() }

// Equal compares agents by id only.
func (a *Agent) Equal(other *Agent) bool {
	return a != nil && other != nil && a.ID() == other.ID()
}

func (a *Agent) Knowledge() *knowledge.Module { return a.knowledge }

func (a *Agent) Attach(p Postman) { a.interaction.SetPostman(p) }

// Deliver puts msg in the inbox; it is read by the next planning step.
func (a *Agent) Deliver(msg model.AgentMessage) { a.interaction.Deliver(msg) }

func (a *Agent) AddGoal(g model.Goal) { a.planning.AddGoal(a.knowledge, g) }

func (a *Agent) AddEventKnowledge(k *evidence.EventKnowledge) { a.knowledge.AddEventKnowledge(k) }

// SendMessage queues msg in the outbox for the next dispatch.
func (a *Agent) SendMessage(msg model.AgentMessage) { a.interaction.SendMessage(msg) }

// Perceive starts the agent's cycle: per-cycle knowledge is cleared, the
// cycle time and the agent's committed state are taken from the snapshot and
// the cell is handed to perception.
func (a *Agent) Perceive(cell model.CellState) {
	a.save()
	a.knowledge.ClearPerceptionKnowledge()
	a.knowledge.SetTime(cell.Time())
	a.knowledge.SetCell(cell.Cell())
	if self, ok := cell.Agent(a.ID()); ok {
		a.knowledge.SetSelf(self)
	}
	a.interaction.Perceive(a.knowledge, cell)
	a.perceived = true
}

// GenerateStimuli runs planning and task execution on the current knowledge.
// Items is never nil, even on error.
func (a *Agent) GenerateStimuli() (model.Stimuli, error) {
	if !a.perceived {
		return model.NewStimuli(a.knowledge.Time(), a.knowledge.Cell(), a.ID()), ErrNotPerceived
	}
	tasks := a.planning.Plan(a.knowledge, a.interaction)
	return a.task.Execute(a.knowledge, tasks, a.interaction)
}

func (a *Agent) DispatchMessages() int {
	return a.interaction.DispatchMessages(a.knowledge)
}

// Execute generates this cycle's stimuli and dispatches the outbox. On error
// the outbox is discarded and empty stimuli are returned with the error.
func (a *Agent) Execute() (model.Stimuli, error) {
	defer func() { a.perceived = false }()
	stimuli, err := a.GenerateStimuli()
	if err != nil {
		a.interaction.DiscardOutbox()
		return model.NewStimuli(a.knowledge.Time(), a.knowledge.Cell(), a.ID()), err
	}
	if n := a.DispatchMessages(); n > 0 {
		a.logger.Debug("messages dispatched", "count", n, "time", a.knowledge.Time())
	}
	return stimuli, nil
}

// save records the state Abort returns to.
func (a *Agent) save() {
	a.checkpoint = a.knowledge.Checkpoint()
	a.interaction.Checkpoint()
	if r, ok := a.planning.(Rewindable); ok {
		r.Checkpoint()
	}
}

// Abort undoes everything the agent did since its last Perceive: knowledge,
// goals, mailboxes and planner bookkeeping go back to how they were when the
// cycle started. It must not be called once the cycle's stimuli have been
// committed.
func (a *Agent) Abort() {
	a.perceived = false
	if a.checkpoint == nil {
		return
	}
	a.knowledge.Restore(a.checkpoint)
	a.interaction.Rollback()
	if r, ok := a.planning.(Rewindable); ok {
		r.Rollback()
	}
	a.checkpoint = nil
	a.logger.Debug("cycle rolled back", "time", a.knowledge.Time())
}

// Step runs the whole pipeline for one cycle.
func (a *Agent) Step(cell model.CellState) (model.Stimuli, error) {
	a.Perceive(cell)
	return a.Execute()
}
