// Package situsim is the public entry point: it builds simulations from
// configuration, runs them and reads back what the store recorded.
package situsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"situsim/internal/config"
	"situsim/internal/logging"
	"situsim/internal/model"
	"situsim/internal/platform"
	"situsim/internal/storage"
)

const (
	defaultDBPath  = "situsim.db"
	recorderName   = "recorder"
	recorderWindow = 8
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
}

type Client struct {
	store    storage.Store
	logger   *slog.Logger
	polis    *platform.Polis
	recorder *platform.Recorder
}

type RunRequest struct {
	// Config defaults to config.Default().
	Config *config.Config
	RunID  string
	// Cycles overrides Config.Simulation.Cycles when positive.
	Cycles int64
}

type RunSummary struct {
	RunID     string
	Cycles    int64
	FinalTime int64
	Agents    int
	Conflicts int
	Failures  int
	Messages  int
	Aborted   bool
	Final     model.WorldSnapshot
}

type RunsRequest struct {
	Limit int
}

// SnapshotRequest selects a stored snapshot. With Latest the newest run is
// used; a negative Time selects that run's newest snapshot.
type SnapshotRequest struct {
	RunID  string
	Latest bool
	Time   int64
}

type AgentRequest struct {
	SnapshotRequest
	AgentID int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		store:  store,
		logger: logging.OrDiscard(opts.Logger),
	}, nil
}

func (c *Client) Close() error {
	if c.polis != nil {
		c.polis.Stop()
	}
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Run builds the configured world and runs it to completion, or until ctx
// is cancelled. The summary is returned even when the run ended early.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = config.Default()
	}
	cycles := cfg.Simulation.Cycles
	if req.Cycles > 0 {
		cycles = req.Cycles
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	sim, err := Build(cfg, c.logger)
	if err != nil {
		return RunSummary{}, err
	}

	coordinator, err := p.NewCoordinator(platform.CoordinatorConfig{
		RunID:            req.RunID,
		World:            sim.World,
		Workers:          cfg.Simulation.Workers,
		PersistSnapshots: cfg.Simulation.PersistSnapshots,
	})
	if err != nil {
		return RunSummary{}, err
	}
	defer p.Release(coordinator.RunID())

	for _, a := range sim.Agents {
		if err := coordinator.Register(a); err != nil {
			return RunSummary{}, err
		}
	}

	report, runErr := coordinator.Run(ctx, cycles)
	summary := RunSummary{
		RunID:     report.RunID,
		Cycles:    report.Cycles,
		FinalTime: report.FinalTime,
		Agents:    len(sim.Agents),
		Conflicts: report.Conflicts,
		Failures:  report.Failures,
		Messages:  report.Messages,
		Aborted:   report.Aborted,
		Final:     sim.World.Snapshot(report.RunID),
	}
	summary.Final.VersionedRecord = storage.CurrentVersion()
	return summary, runErr
}

// Runs lists stored run summaries, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunSummary, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	summaries, err := c.store.ListRunSummaries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RunSummary, 0, req.Limit)
	for i := len(summaries) - 1; i >= 0 && len(out) < req.Limit; i-- {
		out = append(out, summaries[i])
	}
	return out, nil
}

func (c *Client) Snapshot(ctx context.Context, req SnapshotRequest) (model.WorldSnapshot, error) {
	runID, err := c.resolveRun(ctx, req.RunID, req.Latest)
	if err != nil {
		return model.WorldSnapshot{}, err
	}
	var (
		snapshot model.WorldSnapshot
		ok       bool
	)
	if req.Time < 0 {
		snapshot, ok, err = c.store.LatestSnapshot(ctx, runID)
	} else {
		snapshot, ok, err = c.store.GetSnapshot(ctx, runID, req.Time)
	}
	if err != nil {
		return model.WorldSnapshot{}, err
	}
	if !ok {
		return model.WorldSnapshot{}, fmt.Errorf("no snapshot for run %s at time %d", runID, req.Time)
	}
	return snapshot, nil
}

// Agent looks up one agent in a stored snapshot.
func (c *Client) Agent(ctx context.Context, req AgentRequest) (model.AgentState, error) {
	snapshot, err := c.Snapshot(ctx, req.SnapshotRequest)
	if err != nil {
		return model.AgentState{}, err
	}
	a, ok := snapshot.FindAgent(req.AgentID)
	if !ok {
		return model.AgentState{}, fmt.Errorf("agent %d not in snapshot %s@%d", req.AgentID, snapshot.RunID, snapshot.Time)
	}
	return a, nil
}

func (c *Client) Failures(ctx context.Context, runID string, latest bool) ([]model.AgentFailure, error) {
	runID, err := c.resolveRun(ctx, runID, latest)
	if err != nil {
		return nil, err
	}
	return c.store.ListAgentFailures(ctx, runID)
}

// Recent returns the snapshots the in-process recorder still holds, oldest
// first.
func (c *Client) Recent() []model.WorldSnapshot {
	if c.recorder == nil {
		return nil
	}
	return c.recorder.Snapshots()
}

func (c *Client) resolveRun(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return "", err
	}
	if !latest {
		if _, ok, err := c.store.GetRunSummary(ctx, runID); err != nil {
			return "", err
		} else if !ok {
			return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return runID, nil
	}
	summaries, err := c.store.ListRunSummaries(ctx)
	if err != nil {
		return "", err
	}
	if len(summaries) == 0 {
		return "", fmt.Errorf("%w: no runs recorded", ErrRunNotFound)
	}
	return summaries[len(summaries)-1].RunID, nil
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	recorder, err := platform.NewRecorder(recorderName, recorderWindow)
	if err != nil {
		return nil, err
	}
	p := platform.NewPolis(platform.Config{
		Store:          c.store,
		SupportModules: []platform.SupportModule{recorder},
		Logger:         c.logger,
	})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	c.recorder = recorder
	return c.polis, nil
}
