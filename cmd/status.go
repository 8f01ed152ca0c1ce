package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/tui"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the remote job status once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			status, err := a.Remote().Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch status: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, status)
			}
			_, _ = fmt.Fprintln(out, tui.RenderState(job.State{Phase: phaseOf(status), Status: status}, false))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status document")
	return cmd
}

// phaseOf maps a one-off remote status onto a phase. Without a tracked run a
// cleanly halted job reads as idle.
func phaseOf(s job.Status) job.Phase {
	switch {
	case s.Failed():
		return job.PhaseFailed
	case s.Running:
		return job.PhaseRunning
	default:
		return job.PhaseIdle
	}
}
