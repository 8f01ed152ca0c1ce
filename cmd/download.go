package cmd

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrapectl/internal/artifact"
	"github.com/JakeFAU/scrapectl/internal/tui"
)

func newDownloadCmd() *cobra.Command {
	var (
		check bool
		runID string
	)
	cmd := &cobra.Command{
		Use:   "download [kind...]",
		Short: "Store result artifacts in the configured backend.",
		Long: `download streams the requested artifacts (tabular, structured; both by
default) from the remote into the artifact store. With --check it only
reports which artifacts the remote currently holds.`,
		ValidArgs: lo.Map(artifact.Kinds, func(k artifact.Kind, _ int) string { return string(k) }),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := resolveApp(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if check {
				avail, err := a.Retriever().Available(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, tui.RenderAvailability(avail))
				return nil
			}

			kinds := artifact.Kinds
			if len(args) > 0 {
				kinds = make([]artifact.Kind, 0, len(args))
				for _, arg := range lo.Uniq(args) {
					k, err := artifact.ParseKind(arg)
					if err != nil {
						return err
					}
					kinds = append(kinds, k)
				}
			}
			return retrieveKinds(ctx, out, a, kinds, runID)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "only report which artifacts are available")
	cmd.Flags().StringVar(&runID, "run-id", "", "group stored objects under this run id")
	return cmd
}
