package app_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/scrapectl/internal/app"
	"github.com/JakeFAU/scrapectl/internal/config"
	"github.com/JakeFAU/scrapectl/internal/devserver"
	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/store"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		Remote:    config.RemoteConfig{BaseURL: baseURL, RequestTimeout: time.Second, PollInterval: 20 * time.Millisecond},
		Console:   config.ConsoleConfig{Port: 8090},
		DevServer: config.DevServerConfig{Port: 8000, StepInterval: time.Millisecond},
		Artifacts: config.ArtifactsConfig{Backend: config.BackendMemory, Prefix: "results"},
		Events:    config.EventsConfig{BufferSize: 16},
	}
}

func startDevServer(t *testing.T, cfg devserver.Config) string {
	t.Helper()
	dev := devserver.New(cfg)
	t.Cleanup(dev.Close)
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)
	return ts.URL + "/api"
}

func TestBuild_RunsJobToCompletion(t *testing.T) {
	t.Parallel()
	base := startDevServer(t, devserver.Config{StepInterval: time.Millisecond, Pages: 2, ChannelsPerPage: 2})
	ctx := context.Background()

	a, err := app.Build(ctx, testConfig(base), app.Options{Logger: zap.NewNop()})
	require.NoError(t, err)

	ctrl := a.Controller()
	require.NoError(t, ctrl.Start(ctx))
	runID := ctrl.State().RunID

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	state, err := ctrl.WaitTerminal(waitCtx)
	require.NoError(t, err)
	require.Equal(t, job.PhaseCompleted, state.Phase)

	res, err := a.Retriever().Retrieve(ctx, "tabular", runID)
	require.NoError(t, err)
	require.Contains(t, res.URI, "memory://results/"+runID)

	require.NoError(t, a.Close(ctx))

	rec, err := a.Runs().GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, rec.Result)
	require.NotNil(t, rec.FinishedAt)

	require.InDelta(t, 1, mustCounter(t, a, "scrapectl_runs_started_total"), 0)
}

func mustCounter(t *testing.T, a *app.App, name string) float64 {
	t.Helper()
	families, err := a.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestBuild_ConsoleServesState(t *testing.T) {
	t.Parallel()
	base := startDevServer(t, devserver.Config{})
	ctx := context.Background()

	a, err := app.Build(ctx, testConfig(base), app.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	srv, err := a.Console()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"phase":"idle"`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestBuild_LocalBackend(t *testing.T) {
	t.Parallel()
	cfg := testConfig("http://127.0.0.1:1/api")
	cfg.Artifacts = config.ArtifactsConfig{Backend: config.BackendLocal, Dir: t.TempDir(), Prefix: "results"}

	a, err := app.Build(context.Background(), cfg, app.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))
}

func TestBuild_GCSBackend(t *testing.T) {
	t.Parallel()
	cfg := testConfig("http://127.0.0.1:1/api")
	cfg.Artifacts = config.ArtifactsConfig{Backend: config.BackendGCS, GCSBucket: "artifacts", Prefix: "results"}

	a, err := app.Build(context.Background(), cfg, app.Options{
		Logger:     zap.NewNop(),
		GCSOptions: []option.ClientOption{option.WithEndpoint("http://127.0.0.1:1/storage/v1/"), option.WithoutAuthentication()},
	})
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))
}

func TestBuild_PubSubNotifications(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	admin, err := pubsub.NewClient(ctx, "proj", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	_, err = admin.CreateTopic(ctx, "runs")
	require.NoError(t, err)

	base := startDevServer(t, devserver.Config{StepInterval: time.Millisecond, Pages: 1, ChannelsPerPage: 1})
	cfg := testConfig(base)
	cfg.PubSub = config.PubSubConfig{ProjectID: "proj", Topic: "runs"}

	a, err := app.Build(ctx, cfg, app.Options{
		Logger:        zap.NewNop(),
		PubSubOptions: []option.ClientOption{option.WithGRPCConn(conn)},
	})
	require.NoError(t, err)

	require.NoError(t, a.Controller().Start(ctx))
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = a.Controller().WaitTerminal(waitCtx)
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))

	require.Eventually(t, func() bool { return len(srv.Messages()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "success", srv.Messages()[0].Attributes["result"])
}

func TestBuild_PubSubMissingTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	cfg := testConfig("http://127.0.0.1:1/api")
	cfg.PubSub = config.PubSubConfig{ProjectID: "proj", Topic: "absent"}
	_, err = app.Build(ctx, cfg, app.Options{
		Logger:        zap.NewNop(),
		PubSubOptions: []option.ClientOption{option.WithGRPCConn(conn)},
	})
	require.Error(t, err)
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Serve(ctx, addr, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}), zap.NewNop())
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal(errors.New("server did not stop"))
	}
}
