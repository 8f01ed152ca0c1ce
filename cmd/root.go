// Package cmd defines and implements the scrapectl CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/app"
	"github.com/JakeFAU/scrapectl/internal/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const (
	appKey appKeyType = "app"
	cfgKey appKeyType = "config"
)

// Command annotations read by the root hooks.
const (
	annotationNoApp     = "scrapectl/no-app"
	annotationLogToFile = "scrapectl/log-to-file"
)

// shutdownTimeout bounds the final flush of lifecycle events.
const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	logFile string
)

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = func(ctx context.Context, cfg config.Config, opts app.Options) (*app.App, error) {
	return app.Build(ctx, cfg, opts)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrapectl",
		Short: "Operate the remote channel-scraping job.",
		Long: `scrapectl drives a single long-running remote scraping job: it submits
filters, starts and stops the job, follows its progress, reports quota
limits and retrieves the result artifacts.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), cfgKey, cfg)
			if cmd.Annotations[annotationNoApp] == "" {
				opts := app.Options{LogFile: logFile}
				if opts.LogFile == "" && cmd.Annotations[annotationLogToFile] != "" {
					opts.LogFile = filepath.Join(os.TempDir(), "scrapectl-watch.log")
				}
				appInstance, err := newApp(ctx, cfg, opts)
				if err != nil {
					return fmt.Errorf("failed to initialize application services: %w", err)
				}
				ctx = context.WithValue(ctx, appKey, appInstance)
			}
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, ok := cmd.Context().Value(appKey).(*app.App)
			if !ok || appInstance == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := appInstance.Close(ctx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); env vars use the SCRAPECTL_ prefix")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")

	cmd.AddCommand(
		newRunCmd(),
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newAttachCmd(),
		newLimitsCmd(),
		newDownloadCmd(),
		newWatchCmd(),
		newServeCmd(),
		newDevServerCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services are not initialized")
	}
	return a, nil
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration is not loaded")
	}
	return cfg, nil
}
