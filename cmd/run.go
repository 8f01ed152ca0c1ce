package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/filters"
	"github.com/JakeFAU/scrapectl/internal/tui"
)

type runOptions struct {
	formFile string
	sets     []string
	noWait   bool
	download bool
	watch    bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit filters, start the job and follow it to the end.",
		Example: `  scrapectl run --form filters.yaml
  scrapectl run --set participants_from=1000 --set categories=news,tech --download`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunCommand(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.formFile, "form", "f", "", "form file (YAML, JSON or TOML) keyed by filter name")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "filter value as key=value; repeatable")
	cmd.Flags().BoolVar(&opts.noWait, "no-wait", false, "return once the job has started")
	cmd.Flags().BoolVar(&opts.download, "download", false, "retrieve every artifact after a successful run")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "follow the run in the interactive dashboard")
	return cmd
}

func runRunCommand(cmd *cobra.Command, opts *runOptions) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	form, err := loadForm(opts.formFile, opts.sets)
	if err != nil {
		return err
	}

	ctrl := a.Controller()
	ctrl.Mount(ctx)
	payload, err := ctrl.Launch(ctx, form)
	if err != nil {
		return fmt.Errorf("launch job: %w", err)
	}
	out := cmd.OutOrStdout()
	st := ctrl.State()
	a.Logger().Info("job started", zap.String("run_id", st.RunID), zap.Strings("filters", payload.Keys()))
	_, _ = fmt.Fprintf(out, "started run %s with %d filters\n", st.RunID, len(payload))
	if opts.noWait {
		return nil
	}

	if opts.watch {
		if err := tui.Run(tui.Options{
			Controller: ctrl,
			Retrieve:   a.Retriever().Retrieve,
			ExitOnDone: !opts.download,
		}); err != nil {
			return err
		}
		if !ctrl.State().Phase.Terminal() {
			return nil
		}
	}

	final, err := followRun(ctx, out, a)
	if err != nil {
		return err
	}
	return finishRun(ctx, out, a, final, opts.download)
}

func loadForm(path string, sets []string) (filters.Form, error) {
	form := filters.Form{Values: map[string]string{}}
	if path != "" {
		loaded, err := filters.FormFromFile(path)
		if err != nil {
			return filters.Form{}, err
		}
		form = loaded
	}
	return filters.ParseAssignments(form, sets)
}
