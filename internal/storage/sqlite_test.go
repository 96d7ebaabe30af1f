//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"situsim/internal/model"
)

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "situsim.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteStoreSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteTestStore(t)

	for _, cycle := range []int64{1, 2} {
		if err := store.SaveSnapshot(ctx, sampleSnapshot("run-1", cycle)); err != nil {
			t.Fatalf("save snapshot: %v", err)
		}
	}
	updated := sampleSnapshot("run-1", 2)
	updated.Agents = updated.Agents[:1]
	if err := store.SaveSnapshot(ctx, updated); err != nil {
		t.Fatalf("overwrite snapshot: %v", err)
	}

	loaded, ok, err := store.GetSnapshot(ctx, "run-1", 2)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !ok || len(loaded.Agents) != 1 {
		t.Fatalf("unexpected snapshot: %+v", loaded)
	}
	if e, ok := loaded.FindEvent(3); !ok || e.Properties["heat"] != 0.9 {
		t.Fatalf("event lost in round trip: %+v", loaded.Events)
	}

	latest, ok, err := store.LatestSnapshot(ctx, "run-1")
	if err != nil || !ok || latest.Time != 2 {
		t.Fatalf("unexpected latest: %+v ok=%v err=%v", latest, ok, err)
	}
	if _, ok, err := store.GetSnapshot(ctx, "run-1", 5); err != nil || ok {
		t.Fatalf("expected missing snapshot, ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStoreRunSummariesAndFailures(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteTestStore(t)

	for _, s := range []model.RunSummary{
		{VersionedRecord: CurrentVersion(), RunID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z", Cycles: 5},
		{VersionedRecord: CurrentVersion(), RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", Cycles: 3},
	} {
		if err := store.SaveRunSummary(ctx, s); err != nil {
			t.Fatalf("save summary: %v", err)
		}
	}
	list, err := store.ListRunSummaries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].RunID != "a" || list[1].Cycles != 5 {
		t.Fatalf("unexpected summaries: %+v", list)
	}

	for _, id := range []int{4, 2} {
		f := model.AgentFailure{VersionedRecord: CurrentVersion(), RunID: "a", Time: 1, AgentID: id, Phase: "deciding", Error: "boom"}
		if err := store.SaveAgentFailure(ctx, f); err != nil {
			t.Fatalf("save failure: %v", err)
		}
	}
	failures, err := store.ListAgentFailures(ctx, "a")
	if err != nil {
		t.Fatalf("list failures: %v", err)
	}
	if len(failures) != 2 || failures[0].AgentID != 4 || failures[1].AgentID != 2 {
		t.Fatalf("failures should keep insertion order: %+v", failures)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if list, _ := store.ListRunSummaries(ctx); len(list) != 0 {
		t.Fatalf("expected empty after reset, got %d", len(list))
	}
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "factory.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close: %v", err)
	}
}
