// Package app builds and holds the long-lived services of scrapectl. It acts
// as the dependency container shared by every CLI command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/scrapectl/internal/artifact"
	"github.com/JakeFAU/scrapectl/internal/clock/system"
	"github.com/JakeFAU/scrapectl/internal/config"
	"github.com/JakeFAU/scrapectl/internal/console"
	"github.com/JakeFAU/scrapectl/internal/controller"
	"github.com/JakeFAU/scrapectl/internal/id/uuid"
	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/jobapi"
	"github.com/JakeFAU/scrapectl/internal/limits"
	"github.com/JakeFAU/scrapectl/internal/logging"
	"github.com/JakeFAU/scrapectl/internal/metrics"
	"github.com/JakeFAU/scrapectl/internal/progress"
	progresssinks "github.com/JakeFAU/scrapectl/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/scrapectl/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/scrapectl/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/scrapectl/internal/storage/gcs"
	localstorage "github.com/JakeFAU/scrapectl/internal/storage/local"
	memorystorage "github.com/JakeFAU/scrapectl/internal/storage/memory"
)

// Options adjusts how Build wires infrastructure. The zero value is the
// production setup.
type Options struct {
	// Logger overrides the logger built from config.
	Logger *zap.Logger
	// LogFile sends logs to a file instead of stderr.
	LogFile string
	// GCSOptions and PubSubOptions are passed to the Google Cloud clients.
	GCSOptions    []option.ClientOption
	PubSubOptions []option.ClientOption
}

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	httpMetrics *metrics.HTTP
	client      *jobapi.Client
	monitor     *limits.Monitor
	hub         *progress.Hub
	ctrl        *controller.Controller
	retriever   *artifact.Retriever
	runs        *memorystorage.RunStore
	publisher   job.Publisher
	closers     []io.Closer
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger, err := buildLogger(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		runs:     memorystorage.NewRunStore(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.httpMetrics, err = metrics.NewHTTP(a.registry, "scrapectl")
	if err != nil {
		return nil, fmt.Errorf("http metrics init failed: %w", err)
	}

	a.client, err = jobapi.New(jobapi.Config{
		BaseURL:    cfg.Remote.BaseURL,
		Timeout:    cfg.Remote.RequestTimeout,
		HTTPClient: &http.Client{Transport: a.httpMetrics.InstrumentTransport(http.DefaultTransport.(*http.Transport).Clone())},
		Logger:     logger.Named("jobapi"),
	})
	if err != nil {
		return nil, fmt.Errorf("job api client init failed: %w", err)
	}
	clock := system.New()
	a.monitor = limits.NewMonitor(a.client, clock, logger.Named("limits"))

	blobStore, err := a.setupStorage(ctx, opts)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.retriever, err = artifact.NewRetriever(a.client, blobStore, clock, cfg.Artifacts.Prefix, logger.Named("artifact"))
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("artifact retriever init failed: %w", err)
	}

	if err := a.setupPublisher(ctx, opts); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.setupProgress(); err != nil {
		a.closeAll()
		return nil, err
	}

	a.ctrl, err = controller.New(controller.Params{
		Remote: a.client,
		Limits: a.monitor,
		Events: a.hub,
		Clock:  clock,
		IDs:    uuid.New(),
		Logger: logger.Named("controller"),
		Config: controller.Config{
			PollInterval:   cfg.Remote.PollInterval,
			RequestTimeout: cfg.Remote.RequestTimeout,
		},
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("controller init failed: %w", err)
	}
	logger.Debug("application dependencies built",
		zap.String("remote", cfg.Remote.BaseURL),
		zap.Duration("poll_interval", cfg.Remote.PollInterval),
		zap.String("artifacts_backend", cfg.Artifacts.Backend),
	)
	return a, nil
}

func buildLogger(cfg config.Config, opts Options) (*zap.Logger, error) {
	switch {
	case opts.Logger != nil:
		return opts.Logger, nil
	case opts.LogFile != "":
		return logging.NewToFile(cfg.Logging.Development, opts.LogFile)
	case cfg.Logging.File != "":
		return logging.NewToFile(cfg.Logging.Development, cfg.Logging.File)
	default:
		return logging.New(cfg.Logging.Development)
	}
}

func (a *App) setupStorage(ctx context.Context, opts Options) (job.BlobStore, error) {
	switch a.cfg.Artifacts.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS artifact store", zap.String("bucket", a.cfg.Artifacts.GCSBucket))
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Artifacts.GCSBucket}, opts.GCSOptions...)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.closers = append(a.closers, store)
		return store, nil
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Artifacts.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Debug("using local artifact store", zap.String("path", a.cfg.Artifacts.Dir))
		return store, nil
	default:
		a.logger.Info("using in-memory artifact store; artifacts are lost on exit")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context, opts Options) error {
	if !a.cfg.PubSub.Enabled() {
		a.logger.Debug("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.Open(ctx, gcppublisher.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		Topic:     a.cfg.PubSub.Topic,
	}, opts.PubSubOptions...)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.closers = append(a.closers, pub)
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func (a *App) setupProgress() error {
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("events")),
		promSink,
		progresssinks.NewHistorySink(a.runs, a.logger.Named("history")),
		progresssinks.NewPublishSink(a.publisher, a.cfg.PubSub.Topic, a.logger.Named("notify")),
	}
	hubCfg := progress.Config{
		BufferSize: a.cfg.Events.BufferSize,
		Logger:     a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Debug("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("sinks", len(sinkList)),
	)
	return nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Controller returns the job controller.
func (a *App) Controller() *controller.Controller { return a.ctrl }

// Remote returns the remote job API client.
func (a *App) Remote() *jobapi.Client { return a.client }

// Retriever returns the artifact retriever.
func (a *App) Retriever() *artifact.Retriever { return a.retriever }

// Limits returns the limits monitor.
func (a *App) Limits() *limits.Monitor { return a.monitor }

// Runs returns the in-process run history.
func (a *App) Runs() *memorystorage.RunStore { return a.runs }

// Registry returns the Prometheus registry of this process.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Console builds the operator HTTP console over the app's services.
func (a *App) Console() (*console.Server, error) {
	srv, err := console.NewServer(console.Params{
		Controller: a.ctrl,
		Retriever:  a.retriever,
		Runs:       a.runs,
		Metrics:    a.httpMetrics,
		Gatherer:   a.registry,
		Logger:     a.logger.Named("console"),
	})
	if err != nil {
		return nil, fmt.Errorf("console init failed: %w", err)
	}
	return srv, nil
}

// ServeConsole runs the console on cfg.Console.Port until ctx ends.
func (a *App) ServeConsole(ctx context.Context) error {
	srv, err := a.Console()
	if err != nil {
		return err
	}
	return Serve(ctx, fmt.Sprintf(":%d", a.cfg.Console.Port), srv.Handler(), a.logger.Named("console"))
}

// Close stops polling, flushes lifecycle events and releases clients.
func (a *App) Close(ctx context.Context) error {
	if a.ctrl != nil {
		a.ctrl.Close()
	}
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	errs = append(errs, a.closeAll())
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve runs handler on addr until ctx is canceled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
