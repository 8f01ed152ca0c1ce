package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/JakeFAU/scrapectl/internal/app"
	"github.com/JakeFAU/scrapectl/internal/artifact"
	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/tui"
)

// followInterval is how often the CLI re-reads controller state while
// following a run. Polling of the remote itself runs on its own interval.
const followInterval = 100 * time.Millisecond

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// followRun prints a progress line whenever a new status is observed and
// returns once the run is terminal and its follow-ups are done.
func followRun(ctx context.Context, out io.Writer, a *app.App) (job.State, error) {
	ctrl := a.Controller()
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	lastPolls := -1
	for {
		st := ctrl.State()
		if st.Phase.Terminal() {
			return ctrl.WaitTerminal(ctx)
		}
		if st.Polls != lastPolls {
			lastPolls = st.Polls
			_, _ = fmt.Fprintln(out, tui.RenderProgress(st.Status.Progress))
		}
		select {
		case <-ctx.Done():
			return st, fmt.Errorf("follow job (still running remotely): %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// finishRun reports a terminal state and optionally retrieves every artifact.
func finishRun(ctx context.Context, out io.Writer, a *app.App, st job.State, download bool) error {
	ready := a.Controller().ArtifactsReady()
	_, _ = fmt.Fprintln(out, tui.RenderState(st, ready))
	if st.Phase == job.PhaseFailed {
		return fmt.Errorf("job failed: %s", failureText(st))
	}
	if !download || !ready {
		return nil
	}
	return retrieveKinds(ctx, out, a, artifact.Kinds, st.RunID)
}

func retrieveKinds(ctx context.Context, out io.Writer, a *app.App, kinds []artifact.Kind, runID string) error {
	for _, kind := range kinds {
		res, err := a.Retriever().Retrieve(ctx, kind, runID)
		if err != nil {
			return fmt.Errorf("retrieve %s: %w", kind, err)
		}
		_, _ = fmt.Fprintf(out, "%s -> %s\n", kind, res.URI)
	}
	return nil
}

func failureText(st job.State) string {
	if msg := st.Status.ErrorText(); msg != "" {
		return msg
	}
	if st.LastError != "" {
		return st.LastError
	}
	return "unknown error"
}
