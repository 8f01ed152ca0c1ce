package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/scrapectl/internal/job"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunResult is the outcome column of a run record.
type RunResult string

// Run results.
const (
	RunRunning RunResult = "running"
	RunSuccess RunResult = "success"
	RunError   RunResult = "error"
)

// RunRecord summarises one run observed by this process.
type RunRecord struct {
	RunID        string       `json:"run_id"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
	Result       RunResult    `json:"result"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	Polls        int          `json:"polls"`
	StopRequests int          `json:"stop_requests"`
	LastProgress job.Progress `json:"last_progress"`
}

// RunRepository records run lifecycle milestones.
type RunRepository interface {
	// UpsertRunStart inserts the run or leaves an existing one untouched.
	UpsertRunStart(ctx context.Context, runID string, startedAt time.Time) error
	// RecordPoll stores the latest progress and poll count.
	RecordPoll(ctx context.Context, runID string, polls int, progress job.Progress) error
	// RecordStopRequest counts an accepted stop request.
	RecordStopRequest(ctx context.Context, runID string) error
	// CompleteRun marks the run finished.
	CompleteRun(ctx context.Context, runID string, finishedAt time.Time, result RunResult, errMsg *string) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
