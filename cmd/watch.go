package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/tui"
)

func newWatchCmd() *cobra.Command {
	var exitOnDone bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open the live dashboard for the current job.",
		Long: `watch attaches to a running job, if any, and shows its progress and
quota limits. Keys: s stops the job, r refreshes limits, d downloads the
artifacts of a completed run, q quits. Logs go to --log-file or a file in
the temp directory while the dashboard owns the terminal.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationLogToFile: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := resolveApp(ctx)
			if err != nil {
				return err
			}
			ctrl := a.Controller()
			ctrl.Mount(ctx)
			if _, err := ctrl.Attach(ctx); err != nil {
				a.Logger().Warn("attach failed", zap.Error(err))
			}
			return tui.Run(tui.Options{
				Controller: ctrl,
				Retrieve:   a.Retriever().Retrieve,
				ExitOnDone: exitOnDone,
			})
		},
	}
	cmd.Flags().BoolVar(&exitOnDone, "exit-on-done", false, "quit once the run has finished")
	return cmd
}
