package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"situsim/internal/config"
	"situsim/internal/model"
	situsim "situsim/pkg/situsim"
)

// sharedOpener hands every command the same in-memory client so that a run
// is visible to the query commands executed after it.
func sharedOpener(t *testing.T) opener {
	t.Helper()
	client, err := situsim.New(situsim.Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return func(*config.Config, *slog.Logger) (*situsim.Client, func() error, error) {
		return client, func() error { return nil }, nil
	}
}

func execute(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, defaultOpener, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "situsimctl version "+version) {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = execute(t, defaultOpener, "version", "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["version"] != version {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "situsim.yaml")
	if _, err := execute(t, defaultOpener, "init", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("written config is invalid: %v", err)
	}
	if len(cfg.Scenario.Agents) != len(config.DefaultScenario().Agents) {
		t.Fatalf("expected default scenario agents, got %d", len(cfg.Scenario.Agents))
	}

	if _, err := execute(t, defaultOpener, "init", path); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	if _, err := execute(t, defaultOpener, "init", path, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestRunThenQuery(t *testing.T) {
	open := sharedOpener(t)

	out, err := execute(t, open, "run", "--cycles", "3", "--run-id", "cli-run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "run_id=cli-run cycles=3 time=3 agents=3") {
		t.Fatalf("unexpected run output %q", out)
	}

	out, err = execute(t, open, "runs", "--json")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	var runs []model.RunSummary
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "cli-run" || runs[0].Cycles != 3 {
		t.Fatalf("unexpected runs %+v", runs)
	}

	out, err = execute(t, open, "snapshot", "--run", "cli-run", "--time", "2")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var snapshot model.WorldSnapshot
	if err := json.Unmarshal([]byte(out), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Time != 2 || snapshot.RunID != "cli-run" || len(snapshot.Agents) != 3 {
		t.Fatalf("unexpected snapshot time=%d run=%s agents=%d", snapshot.Time, snapshot.RunID, len(snapshot.Agents))
	}

	out, err = execute(t, open, "snapshot", "--latest", "--format", "yaml")
	if err != nil {
		t.Fatalf("snapshot yaml: %v", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if doc["run_id"] != "cli-run" || doc["time"] != 3 {
		t.Fatalf("unexpected yaml snapshot run_id=%v time=%v", doc["run_id"], doc["time"])
	}

	out, err = execute(t, open, "agent", "--latest", "--id", "3")
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	var agent model.AgentState
	if err := json.Unmarshal([]byte(out), &agent); err != nil {
		t.Fatalf("decode agent: %v", err)
	}
	if agent.ID != 3 || agent.Type != "sentinel" {
		t.Fatalf("unexpected agent %+v", agent)
	}

	if _, err := execute(t, open, "failures", "--run", "cli-run"); err != nil {
		t.Fatalf("failures: %v", err)
	}
}

func TestQueryCommandErrors(t *testing.T) {
	open := sharedOpener(t)
	cases := []struct {
		name string
		args []string
	}{
		{"snapshot without selector", []string{"snapshot"}},
		{"snapshot with both selectors", []string{"snapshot", "--run", "x", "--latest"}},
		{"snapshot unknown run", []string{"snapshot", "--run", "missing"}},
		{"snapshot bad format", []string{"snapshot", "--latest", "--format", "xml"}},
		{"agent without id", []string{"agent", "--latest"}},
		{"runs bad limit", []string{"runs", "--limit", "0"}},
		{"run negative cycles", []string{"run", "--cycles", "-1"}},
		{"unknown store", []string{"runs", "--store", "postgres"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := execute(t, open, tc.args...); err == nil {
				t.Fatalf("expected error for %v", tc.args)
			}
		})
	}
}

func TestRunsEmptyStore(t *testing.T) {
	out, err := execute(t, sharedOpener(t), "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "no runs found") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunUsesConfigFile(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Cycles = 2
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := execute(t, sharedOpener(t), "--config", path, "run", "--json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var summary runOutput
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Cycles != 2 || summary.FinalTime != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
