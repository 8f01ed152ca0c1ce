package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapectl/internal/devserver"
	"github.com/JakeFAU/scrapectl/internal/job"
)

func startRemote(t *testing.T) string {
	t.Helper()
	dev := devserver.New(devserver.Config{StepInterval: time.Millisecond, Pages: 1, ChannelsPerPage: 2})
	t.Cleanup(dev.Close)
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)
	return ts.URL + "/api"
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scrapectl.yaml")
	body := "remote:\n" +
		"  base_url: " + baseURL + "\n" +
		"  poll_interval: 20ms\n" +
		"logging:\n" +
		"  development: false\n" +
		"artifacts:\n" +
		"  backend: local\n" +
		"  dir: " + filepath.Join(dir, "artifacts") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRun_CompletesAndDownloads(t *testing.T) {
	cfg := writeConfig(t, startRemote(t))
	form := filepath.Join(t.TempDir(), "form.yaml")
	require.NoError(t, os.WriteFile(form, []byte("participants_from: 10\ncategories:\n  - news\n"), 0o600))

	out, err := execute(t, "run", "--config", cfg, "--form", form, "--set", "channel_type=opened", "--download")
	require.NoError(t, err)
	require.Contains(t, out, "started run")
	require.Contains(t, out, "artifacts ready")
	require.Contains(t, out, "tabular ->")
	require.Contains(t, out, "structured ->")

	out, err = execute(t, "download", "--config", cfg, "--check")
	require.NoError(t, err)
	require.Contains(t, out, "KIND")
	require.Contains(t, out, "true")
}

func TestRun_RejectsUnknownFilter(t *testing.T) {
	cfg := writeConfig(t, startRemote(t))
	_, err := execute(t, "run", "--config", cfg, "--set", "bogus=1")
	require.ErrorContains(t, err, "unknown filter key")
}

func TestStatus_JSON(t *testing.T) {
	cfg := writeConfig(t, startRemote(t))
	out, err := execute(t, "status", "--config", cfg, "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"running": false`)
}

func TestStop_NoJob(t *testing.T) {
	cfg := writeConfig(t, startRemote(t))
	out, err := execute(t, "stop", "--config", cfg)
	require.NoError(t, err)
	require.Contains(t, out, "no job running")
}

func TestLimits(t *testing.T) {
	cfg := writeConfig(t, startRemote(t))
	out, err := execute(t, "limits", "--config", cfg, "--json")
	require.NoError(t, err)
	require.Contains(t, out, "search_requests")

	out, err = execute(t, "limits", "--config", cfg)
	require.NoError(t, err)
	require.Contains(t, out, "search_requests")
}

func TestDownload_UnknownKind(t *testing.T) {
	cfg := writeConfig(t, startRemote(t))
	_, err := execute(t, "download", "--config", cfg, "spreadsheet")
	require.Error(t, err)
}

func TestPhaseOf(t *testing.T) {
	msg := "boom"
	require.Equal(t, "failed", string(phaseOf(jobStatus(true, &msg))))
	require.Equal(t, "running", string(phaseOf(jobStatus(true, nil))))
	require.Equal(t, "idle", string(phaseOf(jobStatus(false, nil))))
}

func jobStatus(running bool, errMsg *string) job.Status {
	return job.Status{Running: running, Error: errMsg}
}
