package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the job with the filters already on the remote.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Controller().Start(cmd.Context()); err != nil {
				return fmt.Errorf("start job: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "started run %s\n", a.Controller().State().RunID)
			return nil
		},
	}
}
