package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAttachCmd() *cobra.Command {
	var download bool
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Follow a job that is already running remotely.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := resolveApp(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			a.Controller().Mount(ctx)
			attached, err := a.Controller().Attach(ctx)
			if err != nil {
				return err
			}
			if !attached {
				_, _ = fmt.Fprintln(out, "no job running")
				return nil
			}
			_, _ = fmt.Fprintf(out, "attached as run %s\n", a.Controller().State().RunID)
			st, err := followRun(ctx, out, a)
			if err != nil {
				return err
			}
			return finishRun(ctx, out, a, st, download)
		},
	}
	cmd.Flags().BoolVar(&download, "download", false, "retrieve every artifact after a successful run")
	return cmd
}
