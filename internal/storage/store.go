package storage

import (
	"context"

	"situsim/internal/model"
)

// Store persists what a simulation run leaves behind: committed world
// snapshots, run summaries and per-agent failure records.
type Store interface {
	Init(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snapshot model.WorldSnapshot) error
	GetSnapshot(ctx context.Context, runID string, time int64) (model.WorldSnapshot, bool, error)
	LatestSnapshot(ctx context.Context, runID string) (model.WorldSnapshot, bool, error)
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
	GetRunSummary(ctx context.Context, runID string) (model.RunSummary, bool, error)
	ListRunSummaries(ctx context.Context) ([]model.RunSummary, error)
	SaveAgentFailure(ctx context.Context, failure model.AgentFailure) error
	ListAgentFailures(ctx context.Context, runID string) ([]model.AgentFailure, error)
}

// Resetter is implemented by stores that can drop everything they hold.
type Resetter interface {
	Reset(ctx context.Context) error
}
