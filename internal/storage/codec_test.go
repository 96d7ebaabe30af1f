package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"situsim/internal/model"
)

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

func TestRunSummaryFixtureDecodes(t *testing.T) {
	data, err := os.ReadFile(fixturePath("run_summary_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	summary, err := DecodeRunSummary(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if summary.RunID != "run-fixture" || summary.Cycles != 12 || summary.Conflicts != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestSnapshotFixtureDecodes(t *testing.T) {
	data, err := os.ReadFile(fixturePath("world_snapshot_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	snapshot, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	agent, ok := snapshot.FindAgent(2)
	if !ok || agent.Type != "sentinel" || !agent.Senses.Audio {
		t.Fatalf("unexpected agent 2: %+v", agent)
	}
	event, ok := snapshot.FindEvent(5)
	if !ok || event.Properties["heat"] != 0.9 || len(event.Modalities) != 1 || event.Modalities[0] != model.SenseVision {
		t.Fatalf("unexpected event 5: %+v", event)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	stale := sampleSnapshot("run-1", 1)
	stale.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeSnapshot(stale)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeSnapshot(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	unversioned, err := EncodeAgentFailure(model.AgentFailure{RunID: "run-1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeAgentFailure(unversioned); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}
