package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"situsim/internal/config"
	situsim "situsim/pkg/situsim"
)

func addSnapshotFlags(cmd *cobra.Command) {
	cmd.Flags().String("run", "", "Run id")
	cmd.Flags().Bool("latest", false, "Use the most recent run")
	cmd.Flags().Int64("time", -1, "Snapshot time (-1 for the run's last snapshot)")
	cmd.Flags().String("format", "json", "Output format (json|yaml)")
}

func snapshotRequest(cmd *cobra.Command) situsim.SnapshotRequest {
	runID, _ := cmd.Flags().GetString("run")
	latest, _ := cmd.Flags().GetBool("latest")
	at, _ := cmd.Flags().GetInt64("time")
	return situsim.SnapshotRequest{RunID: runID, Latest: latest, Time: at}
}

// writeFormatted renders v as indented JSON or as YAML. YAML output keeps the
// JSON field names.
func writeFormatted(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		return writeJSON(w, v)
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("converting to yaml: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func checkFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "", "json", "yaml":
		return format, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func newSnapshotCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show a stored world snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := checkFormat(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, open, func(_ *config.Config, client *situsim.Client) error {
				snapshot, err := client.Snapshot(cmd.Context(), snapshotRequest(cmd))
				if err != nil {
					return err
				}
				return writeFormatted(cmd.OutOrStdout(), format, snapshot)
			})
		},
	}
	addSnapshotFlags(cmd)
	return cmd
}

func newAgentCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Show one agent from a stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetInt("id")
			if id <= 0 {
				return fmt.Errorf("--id must be a positive agent id")
			}
			format, err := checkFormat(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, open, func(_ *config.Config, client *situsim.Client) error {
				agent, err := client.Agent(cmd.Context(), situsim.AgentRequest{
					SnapshotRequest: snapshotRequest(cmd),
					AgentID:         id,
				})
				if err != nil {
					return err
				}
				return writeFormatted(cmd.OutOrStdout(), format, agent)
			})
		},
	}
	addSnapshotFlags(cmd)
	cmd.Flags().Int("id", 0, "Agent id")
	return cmd
}

func newRunsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return fmt.Errorf("limit must be > 0")
			}
			return withClient(cmd, open, func(_ *config.Config, client *situsim.Client) error {
				runs, err := client.Runs(cmd.Context(), situsim.RunsRequest{Limit: limit})
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no runs found")
					return nil
				}
				for _, r := range runs {
					fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s created_at=%s cycles=%d agents=%d conflicts=%d failures=%d aborted=%t\n",
						r.RunID, r.CreatedAtUTC, r.Cycles, r.Agents, r.Conflicts, r.Failures, r.Aborted)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int("limit", 20, "Max runs to list")
	return cmd
}

func newFailuresCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List agent failures recorded for a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("run")
			latest, _ := cmd.Flags().GetBool("latest")
			return withClient(cmd, open, func(_ *config.Config, client *situsim.Client) error {
				failures, err := client.Failures(cmd.Context(), runID, latest)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), failures)
				}
				if len(failures) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no failures recorded")
					return nil
				}
				for _, f := range failures {
					fmt.Fprintf(cmd.OutOrStdout(), "time=%d agent=%d phase=%s error=%s\n", f.Time, f.AgentID, f.Phase, f.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("run", "", "Run id")
	cmd.Flags().Bool("latest", false, "Use the most recent run")
	return cmd
}
