package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the operator HTTP console.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := resolveApp(ctx)
			if err != nil {
				return err
			}
			ctrl := a.Controller()
			ctrl.Mount(ctx)
			attached, err := ctrl.Attach(ctx)
			if err != nil {
				a.Logger().Warn("attach failed", zap.Error(err))
			} else if attached {
				a.Logger().Info("resumed tracking of running job", zap.String("run_id", ctrl.State().RunID))
			}
			return a.ServeConsole(ctx)
		},
	}
}
