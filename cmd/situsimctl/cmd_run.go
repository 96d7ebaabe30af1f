package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"situsim/internal/config"
	situsim "situsim/pkg/situsim"
)

type runOutput struct {
	RunID     string `json:"run_id"`
	Cycles    int64  `json:"cycles"`
	FinalTime int64  `json:"final_time"`
	Agents    int    `json:"agents"`
	Conflicts int    `json:"conflicts"`
	Failures  int    `json:"failures"`
	Messages  int    `json:"messages"`
	Aborted   bool   `json:"aborted"`
}

func newRunCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured scenario",
		Long: `Build the configured world and run it for a number of cycles.

Interrupting the command stops the run at the next phase boundary; the
summary of what completed is still recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cycles, _ := cmd.Flags().GetInt64("cycles")
			runID, _ := cmd.Flags().GetString("run-id")
			if cycles < 0 {
				return fmt.Errorf("cycles must be >= 0: %d", cycles)
			}

			return withClient(cmd, open, func(cfg *config.Config, client *situsim.Client) error {
				summary, runErr := client.Run(cmd.Context(), situsim.RunRequest{
					Config: cfg,
					RunID:  runID,
					Cycles: cycles,
				})
				if summary.RunID == "" {
					return runErr
				}
				out := runOutput{
					RunID:     summary.RunID,
					Cycles:    summary.Cycles,
					FinalTime: summary.FinalTime,
					Agents:    summary.Agents,
					Conflicts: summary.Conflicts,
					Failures:  summary.Failures,
					Messages:  summary.Messages,
					Aborted:   summary.Aborted,
				}
				if jsonOutput(cmd) {
					if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s cycles=%d time=%d agents=%d conflicts=%d failures=%d messages=%d aborted=%t\n",
						out.RunID, out.Cycles, out.FinalTime, out.Agents, out.Conflicts, out.Failures, out.Messages, out.Aborted)
				}
				return runErr
			})
		},
	}
	cmd.Flags().Int64("cycles", 0, "Cycles to run (0 uses the configured value)")
	cmd.Flags().String("run-id", "", "Run id (generated when empty)")
	return cmd
}
