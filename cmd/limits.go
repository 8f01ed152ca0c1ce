package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrapectl/internal/tui"
)

func newLimitsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Fetch and assess the remote quota counters.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			mon := a.Limits()
			if err := mon.Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("refresh limits: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, mon.Assessments())
			}
			_, _ = fmt.Fprintln(out, tui.RenderLimits(mon.Assessments()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print assessments as JSON")
	return cmd
}
