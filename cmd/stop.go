package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the running job to stop.",
		Long: `stop sends a stop request to the remote job. The request is advisory:
the job halts at its next checkpoint. With --wait the command follows the
job until it is no longer running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := resolveApp(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ctrl := a.Controller()
			attached, err := ctrl.Attach(ctx)
			if err != nil {
				return err
			}
			if !attached {
				_, _ = fmt.Fprintln(out, "no job running")
				return nil
			}
			if err := ctrl.Stop(ctx); err != nil {
				return fmt.Errorf("stop job: %w", err)
			}
			_, _ = fmt.Fprintln(out, "stop requested")
			if !wait {
				return nil
			}
			st, err := followRun(ctx, out, a)
			if err != nil {
				return err
			}
			return finishRun(ctx, out, a, st, false)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the job has halted")
	return cmd
}
