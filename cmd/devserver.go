package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrapectl/internal/app"
	"github.com/JakeFAU/scrapectl/internal/devserver"
	"github.com/JakeFAU/scrapectl/internal/logging"
	"github.com/JakeFAU/scrapectl/internal/metrics"
)

type devServerOptions struct {
	port            int
	pages           int
	channelsPerPage int
	failOnPage      int
}

func newDevServerCmd() *cobra.Command {
	opts := &devServerOptions{}
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a simulated remote job for local development.",
		Long: `devserver serves the remote job API under /api with a simulated
scraper that walks pages of fake channels, keeps quota counters and
produces tabular and structured artifacts.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoApp: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDevServer(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port (default devserver.port)")
	cmd.Flags().IntVar(&opts.pages, "pages", devserver.DefaultPages, "pages per run when no end_page filter is set")
	cmd.Flags().IntVar(&opts.channelsPerPage, "channels-per-page", devserver.DefaultChannelsPerPage, "channels on each page")
	cmd.Flags().IntVar(&opts.failOnPage, "fail-on-page", 0, "fail the run on reaching this page")
	return cmd
}

func runDevServer(cmd *cobra.Command, opts *devServerOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	httpMetrics, err := metrics.NewHTTP(reg, "devserver")
	if err != nil {
		return err
	}
	dev := devserver.New(devserver.Config{
		StepInterval:    cfg.DevServer.StepInterval,
		Pages:           opts.pages,
		ChannelsPerPage: opts.channelsPerPage,
		FailOnPage:      opts.failOnPage,
		Metrics:         httpMetrics,
		Logger:          logger.Named("devserver"),
	})
	defer dev.Close()

	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler(reg))
	r.Mount("/", dev.Handler())

	port := cfg.DevServer.Port
	if opts.port > 0 {
		port = opts.port
	}
	return app.Serve(ctx, fmt.Sprintf(":%d", port), r, logger.Named("http"))
}
