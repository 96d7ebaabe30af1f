package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"situsim/internal/agent"
	"situsim/internal/evidence"
	"situsim/internal/model"
	"situsim/internal/scape"
	"situsim/internal/storage"
)

// scripted is a participant whose decisions come from a function. Each
// instance is only touched by one worker at a time, and Deliver runs during
// commit, so it needs no locking.
type scripted struct {
	id      int
	postman agent.Postman
	cell    model.CellState
	seen    []model.CellState
	inbox   []model.AgentMessage
	// inboxAtPerceive records len(inbox) at the start of every cycle.
	inboxAtPerceive []int
	aborts          int
	onPerceive      func()
	decide          func(s *scripted) (model.Stimuli, error)
}

func (s *scripted) ID() int { return s.id }

func (s *scripted) Attach(p agent.Postman) { s.postman = p }

func (s *scripted) Perceive(cell model.CellState) {
	if s.onPerceive != nil {
		s.onPerceive()
	}
	s.cell = cell
	s.seen = append(s.seen, cell)
	s.inboxAtPerceive = append(s.inboxAtPerceive, len(s.inbox))
}

func (s *scripted) Execute() (model.Stimuli, error) {
	if s.decide == nil {
		return s.idle(), nil
	}
	return s.decide(s)
}

func (s *scripted) Deliver(msg model.AgentMessage) { s.inbox = append(s.inbox, msg) }

func (s *scripted) Abort() { s.aborts++ }

func (s *scripted) idle() model.Stimuli {
	return model.NewStimuli(s.cell.Time(), s.cell.Cell(), s.id)
}

func (s *scripted) send(to int, topic string) {
	s.postman.Post(s.id, []model.AgentMessage{{
		ID:           topic,
		From:         s.id,
		To:           to,
		Performative: model.Inform,
		Topic:        topic,
		SentAt:       s.cell.Time(),
	}})
}

func body(id int, x, z float64) model.AgentState {
	return model.AgentState{
		ID:     id,
		Type:   agent.ArchetypeIdle,
		Pose:   model.Pose{Position: model.Vec3{X: x, Z: z}, Facing: model.Vec3{Z: 1}},
		Senses: model.SenseFlags{Vision: true},
	}
}

func newTestWorld(t *testing.T, cellSize float64, bodies ...model.AgentState) *scape.World {
	t.Helper()
	grid, err := scape.NewGrid(cellSize, 0)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	w, err := scape.NewWorld(grid)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	for _, b := range bodies {
		if err := w.AddAgent(b); err != nil {
			t.Fatalf("add agent %d: %v", b.ID, err)
		}
	}
	return w
}

func newTestCoordinator(t *testing.T, cfg CoordinatorConfig, participants ...Participant) *Coordinator {
	t.Helper()
	if cfg.RunID == "" {
		cfg.RunID = "run-test"
	}
	c, err := NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	for _, p := range participants {
		if err := c.Register(p); err != nil {
			t.Fatalf("register %d: %v", p.ID(), err)
		}
	}
	return c
}

func moveBy(dx float64) func(s *scripted) (model.Stimuli, error) {
	return func(s *scripted) (model.Stimuli, error) {
		self, _ := s.cell.Agent(s.id)
		out := s.idle()
		out.Add(model.Move(model.Pose{Position: self.Pose.Position.Add(model.Vec3{X: dx})}))
		return out, nil
	}
}

func TestNewCoordinatorValidation(t *testing.T) {
	if _, err := NewCoordinator(CoordinatorConfig{}); err == nil {
		t.Fatal("expected error without a world")
	}
	w := newTestWorld(t, 10)
	if _, err := NewCoordinator(CoordinatorConfig{World: w, Spectators: []Spectator{nil}}); err == nil {
		t.Fatal("expected error for nil spectator")
	}
	c, err := NewCoordinator(CoordinatorConfig{World: w})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	if c.RunID() == "" {
		t.Fatal("expected a generated run id")
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("expected IDLE, got %s", c.Phase())
	}
}

func TestCoordinatorRegisterRejectsDuplicates(t *testing.T) {
	c := newTestCoordinator(t, CoordinatorConfig{World: newTestWorld(t, 10, body(1, 0, 0))}, &scripted{id: 1})
	if err := c.Register(&scripted{id: 1}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := c.Register(nil); err == nil {
		t.Fatal("expected nil participant error")
	}
	if !c.Unregister(1) || c.Unregister(1) {
		t.Fatal("expected unregister to succeed exactly once")
	}
}

func TestCoordinatorCycleIsolation(t *testing.T) {
	mover := &scripted{id: 1, decide: moveBy(1)}
	observer := &scripted{id: 2}
	w := newTestWorld(t, 100, body(1, 0, 0), body(2, 5, 0))
	c := newTestCoordinator(t, CoordinatorConfig{World: w, Workers: 2}, mover, observer)

	for cycle := int64(0); cycle < 3; cycle++ {
		report, err := c.Step(context.Background())
		if err != nil {
			t.Fatalf("step %d: %v", cycle, err)
		}
		if report.Time != cycle || report.Commit.Time != cycle+1 {
			t.Fatalf("cycle %d: unexpected report times %d/%d", cycle, report.Time, report.Commit.Time)
		}
	}

	if w.Time() != 3 {
		t.Fatalf("expected world time 3, got %d", w.Time())
	}
	if len(observer.seen) != 3 {
		t.Fatalf("expected 3 views, got %d", len(observer.seen))
	}
	for cycle, view := range observer.seen {
		if view.Time() != int64(cycle) {
			t.Fatalf("view %d has time %d", cycle, view.Time())
		}
		seen, ok := view.Agent(1)
		if !ok {
			t.Fatalf("cycle %d: mover missing from observer view", cycle)
		}
		// The mover's stimuli for this cycle are not visible until the next.
		if seen.Pose.Position.X != float64(cycle) {
			t.Fatalf("cycle %d: observer saw mover at x=%v", cycle, seen.Pose.Position.X)
		}
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("expected IDLE between cycles, got %s", c.Phase())
	}
}

func TestCoordinatorMessageLatency(t *testing.T) {
	var sentAt int64 = -1
	sender := &scripted{id: 1}
	sender.decide = func(s *scripted) (model.Stimuli, error) {
		if sentAt < 0 {
			sentAt = s.cell.Time()
			s.send(2, "hello")
		}
		return s.idle(), nil
	}
	var inboxWhileDeciding []int
	receiver := &scripted{id: 2}
	receiver.decide = func(s *scripted) (model.Stimuli, error) {
		inboxWhileDeciding = append(inboxWhileDeciding, len(s.inbox))
		return s.idle(), nil
	}
	w := newTestWorld(t, 100, body(1, 0, 0), body(2, 1, 0))
	c := newTestCoordinator(t, CoordinatorConfig{World: w, Workers: 1}, sender, receiver)

	first, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("step 0: %v", err)
	}
	if first.Messages != 1 {
		t.Fatalf("expected 1 delivered message, got %d", first.Messages)
	}
	if _, err := c.Step(context.Background()); err != nil {
		t.Fatalf("step 1: %v", err)
	}

	if sentAt != 0 {
		t.Fatalf("expected message sent in cycle 0, got %d", sentAt)
	}
	if got := receiver.inboxAtPerceive; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("expected inbox sizes [0 1] at perceive, got %v", got)
	}
	if got := inboxWhileDeciding; len(got) != 2 || got[0] != 0 {
		t.Fatalf("message must not be visible during the cycle it was sent, got %v", got)
	}
	if receiver.inbox[0].From != 1 || receiver.inbox[0].Topic != "hello" {
		t.Fatalf("unexpected message: %+v", receiver.inbox[0])
	}
}

func TestCoordinatorBroadcastReachesNeighbourhoodOnly(t *testing.T) {
	sender := &scripted{id: 1}
	sender.decide = func(s *scripted) (model.Stimuli, error) {
		s.send(model.Broadcast, "news")
		return s.idle(), nil
	}
	near := &scripted{id: 2}
	far := &scripted{id: 3}
	w := newTestWorld(t, 10, body(1, 1, 1), body(2, 2, 2), body(3, 55, 55))
	c := newTestCoordinator(t, CoordinatorConfig{World: w, Workers: 3}, sender, near, far)

	report, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if report.Messages != 1 {
		t.Fatalf("expected one delivery, got %d", report.Messages)
	}
	if len(near.inbox) != 1 || len(far.inbox) != 0 || len(sender.inbox) != 0 {
		t.Fatalf("unexpected inboxes near=%d far=%d sender=%d", len(near.inbox), len(far.inbox), len(sender.inbox))
	}
}

func TestCoordinatorDropsMessagesToUnknownAgents(t *testing.T) {
	sender := &scripted{id: 1}
	sender.decide = func(s *scripted) (model.Stimuli, error) {
		s.send(99, "lost")
		return s.idle(), nil
	}
	c := newTestCoordinator(t, CoordinatorConfig{World: newTestWorld(t, 10, body(1, 0, 0))}, sender)
	report, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if report.Messages != 0 || report.Dropped != 1 {
		t.Fatalf("expected 0 delivered and 1 dropped, got %d/%d", report.Messages, report.Dropped)
	}
}

func TestCoordinatorIsolatesAgentFailures(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}

	failing := &scripted{id: 1}
	failing.decide = func(s *scripted) (model.Stimuli, error) {
		s.send(3, "never")
		return model.Stimuli{}, errors.New("planner exploded")
	}
	panicking := &scripted{id: 2}
	panicking.decide = func(*scripted) (model.Stimuli, error) {
		panic("boom")
	}
	healthy := &scripted{id: 3, decide: moveBy(1)}

	w := newTestWorld(t, 100, body(1, 0, 0), body(2, 10, 0), body(3, 20, 0))
	c := newTestCoordinator(t, CoordinatorConfig{World: w, Workers: 3, Store: store}, failing, panicking, healthy)

	report, err := c.Step(ctx)
	if err != nil {
		t.Fatalf("a failing agent must not fail the cycle: %v", err)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", report.Failures)
	}
	for i, want := range []int{1, 2} {
		f := report.Failures[i]
		if f.AgentID != want || f.Phase != string(PhaseDeciding) || f.Time != 0 || f.RunID != "run-test" {
			t.Fatalf("unexpected failure record %+v", f)
		}
	}
	if moved, _ := w.Agent(3); moved.Pose.Position.X != 21 {
		t.Fatalf("healthy agent should have moved, at %+v", moved.Pose.Position)
	}
	if still, _ := w.Agent(1); still.Pose.Position.X != 0 {
		t.Fatalf("failed agent should not move, at %+v", still.Pose.Position)
	}
	if len(healthy.inbox) != 0 || report.Dropped != 1 {
		t.Fatalf("mail from a failed agent must be dropped, inbox=%d dropped=%d", len(healthy.inbox), report.Dropped)
	}

	stored, err := store.ListAgentFailures(ctx, "run-test")
	if err != nil {
		t.Fatalf("list failures: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored failures, got %d", len(stored))
	}

	if _, err := c.Step(ctx); err != nil {
		t.Fatalf("second step: %v", err)
	}
	if c.Totals().Failures != 4 {
		t.Fatalf("expected 4 failures over two cycles, got %d", c.Totals().Failures)
	}
}

func TestCoordinatorPerceivePanicSkipsDeciding(t *testing.T) {
	decided := false
	p := &scripted{id: 1, onPerceive: func() { panic("bad sensor") }}
	p.decide = func(s *scripted) (model.Stimuli, error) {
		decided = true
		return s.idle(), nil
	}
	c := newTestCoordinator(t, CoordinatorConfig{World: newTestWorld(t, 10, body(1, 0, 0))}, p)
	report, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if decided {
		t.Fatal("agent that failed to perceive must not decide")
	}
	if len(report.Failures) != 1 || report.Failures[0].Phase != string(PhasePerceiving) {
		t.Fatalf("unexpected failures %+v", report.Failures)
	}
}

func TestCoordinatorAbortsBetweenPhases(t *testing.T) {
	t.Run("before perceiving", func(t *testing.T) {
		w := newTestWorld(t, 10, body(1, 0, 0))
		c := newTestCoordinator(t, CoordinatorConfig{World: w}, &scripted{id: 1, decide: moveBy(1)})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := c.Step(ctx); !errors.Is(err, ErrCycleAborted) {
			t.Fatalf("expected ErrCycleAborted, got %v", err)
		}
		if w.Time() != 0 {
			t.Fatalf("aborted cycle must not advance time, got %d", w.Time())
		}
	})

	t.Run("after deciding", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		mover := &scripted{id: 1}
		mover.decide = func(s *scripted) (model.Stimuli, error) {
			s.send(2, "discarded")
			out, err := moveBy(1)(s)
			cancel()
			return out, err
		}
		receiver := &scripted{id: 2}
		w := newTestWorld(t, 10, body(1, 0, 0), body(2, 1, 0))
		c := newTestCoordinator(t, CoordinatorConfig{World: w, Workers: 1}, mover, receiver)

		_, err := c.Step(ctx)
		if !errors.Is(err, ErrCycleAborted) || !errors.Is(err, context.Canceled) {
			t.Fatalf("expected aborted cycle wrapping context.Canceled, got %v", err)
		}
		if w.Time() != 0 {
			t.Fatalf("aborted cycle must not commit, time=%d", w.Time())
		}
		if a, _ := w.Agent(1); a.Pose.Position.X != 0 {
			t.Fatalf("aborted stimuli were applied: %+v", a.Pose.Position)
		}
		if c.Phase() != PhaseIdle {
			t.Fatalf("expected IDLE after abort, got %s", c.Phase())
		}
		if mover.aborts != 1 || receiver.aborts != 1 {
			t.Fatalf("expected every participant rolled back once, got %d and %d", mover.aborts, receiver.aborts)
		}

		// Mail from the aborted cycle never arrives.
		mover.decide = nil
		if _, err := c.Step(context.Background()); err != nil {
			t.Fatalf("next step: %v", err)
		}
		if len(receiver.inbox) != 0 {
			t.Fatalf("expected no mail from the aborted cycle, got %d", len(receiver.inbox))
		}
	})
}

func TestCoordinatorStop(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		c := newTestCoordinator(t, CoordinatorConfig{World: newTestWorld(t, 10, body(1, 0, 0))}, &scripted{id: 1})
		c.Stop()
		if c.Phase() != PhaseStopped {
			t.Fatalf("expected STOPPED, got %s", c.Phase())
		}
		if _, err := c.Step(context.Background()); !errors.Is(err, ErrCoordinatorStopped) {
			t.Fatalf("expected ErrCoordinatorStopped, got %v", err)
		}
		if err := c.Register(&scripted{id: 2}); err == nil {
			t.Fatal("expected register to fail once stopped")
		}
	})

	t.Run("mid cycle", func(t *testing.T) {
		w := newTestWorld(t, 10, body(1, 0, 0))
		var c *Coordinator
		p := &scripted{id: 1, decide: moveBy(1)}
		p.onPerceive = func() { c.Stop() }
		c = newTestCoordinator(t, CoordinatorConfig{World: w}, p)

		report, err := c.Run(context.Background(), 5)
		if !errors.Is(err, ErrCoordinatorStopped) {
			t.Fatalf("expected ErrCoordinatorStopped, got %v", err)
		}
		if !report.Aborted || report.Cycles != 0 {
			t.Fatalf("unexpected run report %+v", report)
		}
		if c.Phase() != PhaseStopped {
			t.Fatalf("expected STOPPED, got %s", c.Phase())
		}
		if w.Time() != 0 {
			t.Fatalf("stopped cycle must not commit, time=%d", w.Time())
		}
	})
}

func TestCoordinatorRunPersistsSummaryAndSnapshots(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}
	recorder, err := NewRecorder("recorder", 2)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w := newTestWorld(t, 10, body(1, 0, 0))
	c := newTestCoordinator(t, CoordinatorConfig{
		World:            w,
		Store:            store,
		PersistSnapshots: true,
		Spectators:       []Spectator{recorder},
		Now:              func() time.Time { return fixed },
	}, &scripted{id: 1, decide: moveBy(0.5)})

	report, err := c.Run(ctx, 3)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Cycles != 3 || report.FinalTime != 3 || report.Aborted {
		t.Fatalf("unexpected run report %+v", report)
	}

	summary, ok, err := store.GetRunSummary(ctx, "run-test")
	if err != nil || !ok {
		t.Fatalf("summary missing: ok=%v err=%v", ok, err)
	}
	if summary.Cycles != 3 || summary.FinalTime != 3 || summary.Agents != 1 || summary.CreatedAtUTC != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.VersionedRecord != storage.CurrentVersion() {
		t.Fatalf("summary not stamped: %+v", summary.VersionedRecord)
	}

	latest, ok, err := store.LatestSnapshot(ctx, "run-test")
	if err != nil || !ok {
		t.Fatalf("latest snapshot missing: ok=%v err=%v", ok, err)
	}
	if latest.Time != 3 {
		t.Fatalf("expected latest snapshot at time 3, got %d", latest.Time)
	}
	if a, ok := latest.FindAgent(1); !ok || a.Pose.Position.X != 1.5 {
		t.Fatalf("unexpected agent in snapshot: %+v", a)
	}
	if _, ok, _ := store.GetSnapshot(ctx, "run-test", 1); !ok {
		t.Fatal("expected snapshot for time 1")
	}

	if recorder.Observed() != 3 || len(recorder.Snapshots()) != 2 {
		t.Fatalf("recorder observed=%d held=%d", recorder.Observed(), len(recorder.Snapshots()))
	}
	if last, _ := recorder.Latest(); last.Time != 3 {
		t.Fatalf("recorder latest at %d", last.Time)
	}
}

func TestCoordinatorRunRejectsNegativeCycles(t *testing.T) {
	c := newTestCoordinator(t, CoordinatorConfig{World: newTestWorld(t, 10)})
	if _, err := c.Run(context.Background(), -1); err == nil {
		t.Fatal("expected error for negative cycles")
	}
}

func TestCoordinatorSkipsParticipantWithoutBody(t *testing.T) {
	ghost := &scripted{id: 7}
	c := newTestCoordinator(t, CoordinatorConfig{World: newTestWorld(t, 10, body(1, 0, 0))}, &scripted{id: 1}, ghost)
	report, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(ghost.seen) != 0 || len(report.Failures) != 0 {
		t.Fatalf("ghost should be skipped silently, seen=%d failures=%d", len(ghost.seen), len(report.Failures))
	}
}

func TestCoordinatorResolvesClaimConflictBetweenForagers(t *testing.T) {
	forager := func(id int, x float64) model.AgentState {
		return model.AgentState{
			ID:     id,
			Type:   agent.ArchetypeForager,
			Pose:   model.Pose{Position: model.Vec3{X: x}, Facing: model.Vec3{Z: 1}},
			Senses: model.SenseFlags{Vision: true},
			Radius: 0.25,
		}
	}
	bodies := []model.AgentState{forager(1, 0), forager(2, 0.6)}
	w := newTestWorld(t, 10, bodies...)
	if err := w.AddObject(model.EnvObjectState{ID: 20, Type: "berry", Pose: model.Pose{Position: model.Vec3{X: 0.3, Z: 0.8}}}); err != nil {
		t.Fatalf("add object: %v", err)
	}

	participants := make([]Participant, 0, len(bodies))
	for _, b := range bodies {
		planner, err := agent.NewArchetypePlanner(b.Type, agent.DefaultArchetypeParams(), nil)
		if err != nil {
			t.Fatalf("planner: %v", err)
		}
		a, err := agent.New(b, agent.WithPlanning(planner))
		if err != nil {
			t.Fatalf("agent: %v", err)
		}
		participants = append(participants, a)
	}
	c := newTestCoordinator(t, CoordinatorConfig{World: w, Workers: 2}, participants...)

	report, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(report.Commit.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %+v", report.Commit.Conflicts)
	}
	conflict := report.Commit.Conflicts[0]
	if conflict.ObjectID != 20 || conflict.Winner != 1 || len(conflict.Losers) != 1 || conflict.Losers[0] != 2 {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
	if berry, _ := w.Object(20); berry.Owner != 1 {
		t.Fatalf("expected owner 1, got %d", berry.Owner)
	}
	if c.Totals().Conflicts != 1 {
		t.Fatalf("expected 1 conflict in totals, got %d", c.Totals().Conflicts)
	}
}

// cancelAfterExecute cancels the cycle context the first time its agent has
// decided, so the cycle is cut off between DECIDING and COMMITTING.
type cancelAfterExecute struct {
	*agent.Agent
	cancel context.CancelFunc
}

func (c *cancelAfterExecute) Execute() (model.Stimuli, error) {
	out, err := c.Agent.Execute()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return out, err
}

func TestCoordinatorAbortedCycleReplaysIdentically(t *testing.T) {
	self := model.AgentState{
		ID:     1,
		Type:   agent.ArchetypeSentinel,
		Pose:   model.Pose{Facing: model.Vec3{Z: 1}},
		Senses: model.SenseFlags{Vision: true},
	}
	w := newTestWorld(t, 10, self)
	if _, err := w.AddEvent(model.Event{
		ID:         5,
		Name:       "fire",
		Type:       "hazard",
		Position:   model.Vec3{Z: 3},
		Properties: map[string]float64{"heat": 0.9},
		Modalities: []model.Sense{model.SenseVision},
	}); err != nil {
		t.Fatalf("add event: %v", err)
	}

	params := agent.DefaultArchetypeParams()
	params.EventType = "hazard"
	planner, err := agent.NewArchetypePlanner(self.Type, params, nil)
	if err != nil {
		t.Fatalf("planner: %v", err)
	}
	a, err := agent.New(self, agent.WithPlanning(planner))
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	ek := evidence.NewEventKnowledge("fire", "hazard")
	heat, err := evidence.NewEventPropertyKnowledge("heat", model.SenseVision, 0.8, 1.0)
	if err != nil {
		t.Fatalf("property knowledge: %v", err)
	}
	if err := ek.AddProperty(heat); err != nil {
		t.Fatalf("add property: %v", err)
	}
	a.AddEventKnowledge(ek)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newTestCoordinator(t, CoordinatorConfig{World: w}, &cancelAfterExecute{Agent: a, cancel: cancel})

	if _, err := c.Step(ctx); !errors.Is(err, ErrCycleAborted) {
		t.Fatalf("expected ErrCycleAborted, got %v", err)
	}
	if w.Time() != 0 {
		t.Fatalf("aborted cycle committed, time=%d", w.Time())
	}

	report, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.Time != 0 || report.Commit.Spawned != 1 {
		t.Fatalf("expected the alarm spawned when cycle 0 is replayed, got time=%d spawned=%d", report.Time, report.Commit.Spawned)
	}
}
