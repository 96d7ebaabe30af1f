package scape

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"situsim/internal/logging"
	"situsim/internal/model"
	"situsim/internal/perception"
)

// World is the committed world state. Only Commit mutates it during a run;
// snapshots handed out are copies.
type World struct {
	partition Partition
	logger    *slog.Logger
	maxStep   float64

	mu          sync.RWMutex
	time        int64
	agents      map[int]model.AgentState
	objects     map[int]model.EnvObjectState
	events      map[int]model.Event
	collisions  map[int][]model.Collision
	nextEventID int
}

type Option func(*World)

func WithLogger(logger *slog.Logger) Option {
	return func(w *World) { w.logger = logging.OrDiscard(logger) }
}

// WithMaxStep caps how far one move stimulus may carry an agent on the
// ground plane. Zero leaves moves uncapped.
func WithMaxStep(d float64) Option {
	return func(w *World) { w.maxStep = d }
}

func NewWorld(partition Partition, opts ...Option) (*World, error) {
	if partition == nil {
		return nil, fmt.Errorf("partition is required")
	}
	w := &World{
		partition:   partition,
		logger:      logging.Discard(),
		agents:      make(map[int]model.AgentState),
		objects:     make(map[int]model.EnvObjectState),
		events:      make(map[int]model.Event),
		collisions:  make(map[int][]model.Collision),
		nextEventID: 1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *World) Partition() Partition { return w.partition }

func (w *World) Time() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.time
}

func (w *World) AddAgent(a model.AgentState) error {
	if a.ID <= 0 {
		return fmt.Errorf("agent id must be positive: %d", a.ID)
	}
	if _, err := w.partition.CellOf(a.Pose.Position); err != nil {
		return fmt.Errorf("agent %d: %w", a.ID, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.agents[a.ID]; exists {
		return fmt.Errorf("duplicate agent id: %d", a.ID)
	}
	w.agents[a.ID] = a
	return nil
}

func (w *World) RemoveAgent(id int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.agents[id]; !ok {
		return false
	}
	delete(w.agents, id)
	delete(w.collisions, id)
	return true
}

func (w *World) AddObject(o model.EnvObjectState) error {
	if o.ID <= 0 {
		return fmt.Errorf("object id must be positive: %d", o.ID)
	}
	if _, err := w.partition.CellOf(o.Pose.Position); err != nil {
		return fmt.Errorf("object %d: %w", o.ID, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.objects[o.ID]; exists {
		return fmt.Errorf("duplicate object id: %d", o.ID)
	}
	w.objects[o.ID] = o
	return nil
}

// AddEvent activates e. A zero id is replaced by the next free id, which is
// returned.
func (w *World) AddEvent(e model.Event) (int, error) {
	if _, err := w.partition.CellOf(e.Position); err != nil {
		return 0, fmt.Errorf("event %q: %w", e.Name, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if e.ID == 0 {
		e.ID = w.allocEventID()
	} else if _, exists := w.events[e.ID]; exists {
		return 0, fmt.Errorf("duplicate event id: %d", e.ID)
	}
	if e.ID >= w.nextEventID {
		w.nextEventID = e.ID + 1
	}
	e.CreatedAt = w.time
	w.events[e.ID] = e.Clone()
	return e.ID, nil
}

func (w *World) allocEventID() int {
	for {
		id := w.nextEventID
		w.nextEventID++
		if _, taken := w.events[id]; !taken {
			return id
		}
	}
}

func (w *World) Agent(id int) (model.AgentState, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.agents[id]
	return a, ok
}

func (w *World) Object(id int) (model.EnvObjectState, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	o, ok := w.objects[id]
	return o, ok
}

func (w *World) Event(id int) (model.Event, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.events[id]
	if !ok {
		return model.Event{}, false
	}
	return e.Clone(), true
}

// AgentIDs returns every agent id in ascending order.
func (w *World) AgentIDs() []int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]int, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Views are the snapshots released for one cycle.
type Views struct {
	Time  int64
	Cells []model.CellID
	// States holds one snapshot per occupied cell.
	States map[model.CellID]model.CellState
	// Agents holds each agent's perception view: its own cell, unioned with
	// neighbouring cells when the agent is within the border margin.
	Agents map[int]model.CellState
	// Home maps each agent to the cell its position falls in.
	Home map[int]model.CellID
}

// BuildViews snapshots the committed state for the current cycle.
func (w *World) BuildViews() (Views, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	type bucket struct {
		agents  []model.AgentState
		objects []model.EnvObjectState
		events  []model.Event
	}
	buckets := make(map[model.CellID]*bucket)
	at := func(p model.Vec3, what string, id int) (*bucket, model.CellID, error) {
		cell, err := w.partition.CellOf(p)
		if err != nil {
			return nil, model.CellID{}, fmt.Errorf("build snapshot: %s %d: %w", what, id, err)
		}
		b, ok := buckets[cell]
		if !ok {
			b = &bucket{}
			buckets[cell] = b
		}
		return b, cell, nil
	}

	home := make(map[int]model.CellID, len(w.agents))
	for _, a := range w.agents {
		b, cell, err := at(a.Pose.Position, "agent", a.ID)
		if err != nil {
			return Views{}, err
		}
		b.agents = append(b.agents, a)
		home[a.ID] = cell
	}
	for _, o := range w.objects {
		b, _, err := at(o.Pose.Position, "object", o.ID)
		if err != nil {
			return Views{}, err
		}
		b.objects = append(b.objects, o)
	}
	for _, e := range w.events {
		b, _, err := at(e.Position, "event", e.ID)
		if err != nil {
			return Views{}, err
		}
		b.events = append(b.events, e)
	}

	views := Views{
		Time:   w.time,
		Cells:  make([]model.CellID, 0, len(buckets)),
		States: make(map[model.CellID]model.CellState, len(buckets)),
		Agents: make(map[int]model.CellState, len(w.agents)),
		Home:   home,
	}
	for cell, b := range buckets {
		views.Cells = append(views.Cells, cell)
		views.States[cell] = model.NewCellState(w.time, cell, b.agents, b.objects, b.events, w.collisions)
	}
	model.SortCellIDs(views.Cells)

	for id, cell := range home {
		neighbourhood, err := w.partition.Neighbourhood(w.agents[id].Pose.Position)
		if err != nil {
			return Views{}, fmt.Errorf("build snapshot: agent %d: %w", id, err)
		}
		if len(neighbourhood) == 0 || neighbourhood[0] != cell {
			return Views{}, fmt.Errorf("%w: agent %d neighbourhood does not start at %s", ErrPartitionInconsistent, id, cell)
		}
		parts := make([]model.CellState, 0, len(neighbourhood))
		for _, n := range neighbourhood {
			if s, ok := views.States[n]; ok {
				parts = append(parts, s)
			}
		}
		if len(parts) == 1 {
			views.Agents[id] = parts[0]
			continue
		}
		views.Agents[id] = model.Union(w.time, cell, parts...)
	}
	return views, nil
}

// Conflict is a contended claim resolved in favour of Winner.
type Conflict struct {
	ObjectID int   `json:"object_id"`
	Winner   int   `json:"winner"`
	Losers   []int `json:"losers"`
}

type CommitReport struct {
	Time       int64      `json:"time"`
	Applied    int        `json:"applied"`
	Rejected   int        `json:"rejected"`
	Conflicts  []Conflict `json:"conflicts,omitempty"`
	Spawned    int        `json:"spawned"`
	Expired    int        `json:"expired"`
	Collisions int        `json:"collisions"`
}

// Commit applies one cycle's stimuli in ascending agent order, resolves
// claims (lowest agent id wins), spawns emitted events, advances the clock,
// drops expired events and recomputes collisions for the next snapshot.
func (w *World) Commit(batch []model.Stimuli) (CommitReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ordered := append([]model.Stimuli(nil), batch...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].AgentID < ordered[j].AgentID })

	next := w.time + 1
	report := CommitReport{Time: next}
	claims := make(map[int][]int)
	claimOrder := make([]int, 0)

	for _, s := range ordered {
		agent, ok := w.agents[s.AgentID]
		if !ok {
			w.logger.Warn("stimuli from unknown agent dropped", "agent", s.AgentID, "time", w.time)
			report.Rejected += s.Len()
			continue
		}
		if s.Time != w.time {
			w.logger.Warn("stale stimuli dropped", "agent", s.AgentID, "stimuli_time", s.Time, "time", w.time)
			report.Rejected += s.Len()
			continue
		}
		for _, st := range s.Items {
			switch st.Kind {
			case model.StimulusMove:
				moved, err := w.move(agent, st.Pose)
				if err != nil {
					w.logger.Warn("move rejected", "agent", agent.ID, "error", err)
					report.Rejected++
					continue
				}
				agent = moved
			case model.StimulusTurn:
				if facing := st.Pose.Facing; facing.IsFinite() && facing.Len() > 0 {
					agent.Pose.Facing = facing
				}
			case model.StimulusClaim:
				if _, seen := claims[st.ObjectID]; !seen {
					claimOrder = append(claimOrder, st.ObjectID)
				}
				claims[st.ObjectID] = appendUnique(claims[st.ObjectID], agent.ID)
				continue
			case model.StimulusEmit:
				if st.Event == nil || !st.Event.Position.IsFinite() {
					report.Rejected++
					continue
				}
				e := st.Event.Clone()
				e.ID = w.allocEventID()
				e.Source = agent.ID
				e.CreatedAt = next
				lifetime := st.Lifetime
				if lifetime <= 0 {
					lifetime = 1
				}
				e.ExpiresAt = next + lifetime
				w.events[e.ID] = e
				report.Spawned++
			case model.StimulusIdle:
			default:
				w.logger.Warn("unknown stimulus kind", "agent", agent.ID, "kind", st.Kind)
				report.Rejected++
				continue
			}
			report.Applied++
		}
		w.agents[agent.ID] = agent
	}

	for _, objectID := range claimOrder {
		claimants := claims[objectID]
		obj, ok := w.objects[objectID]
		if !ok || (obj.Owner != 0 && obj.Owner != claimants[0]) {
			report.Rejected += len(claimants)
			continue
		}
		winner := claimants[0]
		obj.Owner = winner
		w.objects[objectID] = obj
		report.Applied++
		if len(claimants) > 1 {
			c := Conflict{ObjectID: objectID, Winner: winner, Losers: append([]int(nil), claimants[1:]...)}
			report.Conflicts = append(report.Conflicts, c)
			report.Rejected += len(c.Losers)
			w.logger.Info("commit conflict", "object", objectID, "winner", winner, "losers", c.Losers, "time", w.time)
		}
	}

	w.time = next
	for id, e := range w.events {
		if e.ExpiresAt > 0 && e.ExpiresAt <= w.time {
			delete(w.events, id)
			report.Expired++
		}
	}
	report.Collisions = w.computeCollisions()
	return report, nil
}

func appendUnique(ids []int, id int) []int {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func (w *World) move(agent model.AgentState, target model.Pose) (model.AgentState, error) {
	if !target.Position.IsFinite() || !target.Facing.IsFinite() {
		return agent, fmt.Errorf("non-finite pose %+v", target)
	}
	from := agent.Pose.Position
	to := target.Position
	if w.maxStep > 0 {
		delta := model.Vec3{X: to.X - from.X, Z: to.Z - from.Z}
		if d := delta.Len(); d > w.maxStep {
			delta = delta.Scale(w.maxStep / d)
			to = model.Vec3{X: from.X + delta.X, Y: to.Y, Z: from.Z + delta.Z}
		}
	}
	if _, err := w.partition.CellOf(to); err != nil {
		return agent, err
	}
	agent.Pose.Position = to
	if target.Facing.Len() > 0 {
		agent.Pose.Facing = target.Facing
	}
	return agent, nil
}

// computeCollisions rebuilds the per-agent contact list: agents whose radii
// overlap, and agents touching an obstacle footprint. Returns the number of
// contacts recorded.
func (w *World) computeCollisions() int {
	w.collisions = make(map[int][]model.Collision)
	ids := make([]int, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	objectIDs := make([]int, 0, len(w.objects))
	for id, o := range w.objects {
		if o.Obstacle {
			objectIDs = append(objectIDs, id)
		}
	}
	sort.Ints(objectIDs)

	count := 0
	for i, id := range ids {
		a := w.agents[id]
		pa := orb.Point{a.Pose.Position.X, a.Pose.Position.Z}
		for _, otherID := range ids[i+1:] {
			b := w.agents[otherID]
			pb := orb.Point{b.Pose.Position.X, b.Pose.Position.Z}
			if planar.Distance(pa, pb) < a.Radius+b.Radius {
				w.collisions[id] = append(w.collisions[id], model.Collision{CollidableID: otherID, CollidableType: model.CollidableAgent})
				w.collisions[otherID] = append(w.collisions[otherID], model.Collision{CollidableID: id, CollidableType: model.CollidableAgent})
				count += 2
			}
		}
		for _, objectID := range objectIDs {
			footprint := perception.Footprint(w.objects[objectID])
			if footprint.Bound().Pad(a.Radius).Contains(pa) {
				w.collisions[id] = append(w.collisions[id], model.Collision{CollidableID: objectID, CollidableType: model.CollidableEnvObj})
				count++
			}
		}
	}
	return count
}

// Snapshot exports the committed state with every slice ordered by id.
func (w *World) Snapshot(runID string) model.WorldSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap := model.WorldSnapshot{
		RunID:   runID,
		Time:    w.time,
		Agents:  make([]model.AgentState, 0, len(w.agents)),
		Objects: make([]model.EnvObjectState, 0, len(w.objects)),
		Events:  make([]model.Event, 0, len(w.events)),
	}
	for _, a := range w.agents {
		snap.Agents = append(snap.Agents, a)
	}
	for _, o := range w.objects {
		snap.Objects = append(snap.Objects, o)
	}
	for _, e := range w.events {
		snap.Events = append(snap.Events, e.Clone())
	}
	sort.Slice(snap.Agents, func(i, j int) bool { return snap.Agents[i].ID < snap.Agents[j].ID })
	sort.Slice(snap.Objects, func(i, j int) bool { return snap.Objects[i].ID < snap.Objects[j].ID })
	sort.Slice(snap.Events, func(i, j int) bool { return snap.Events[i].ID < snap.Events[j].ID })
	return snap
}
