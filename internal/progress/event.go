package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/scrapectl/internal/job"
)

// Stage denotes the lifecycle milestone represented by an Event.
type Stage string

// Supported stages.
const (
	StageJobStart      Stage = "JOB_START"
	StagePoll          Stage = "POLL"
	StageJobDone       Stage = "JOB_DONE"
	StageJobError      Stage = "JOB_ERROR"
	StageStopRequested Stage = "STOP_REQUESTED"
	StageLimits        Stage = "LIMITS"
)

// Event is one lifecycle milestone of a run.
type Event struct {
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Progress is the snapshot reported by the poll that produced the event.
	Progress job.Progress
	// Polls is the number of applied polls so far in the run.
	Polls int
	// Limits is set on LIMITS events.
	Limits job.Limits
	// Dur is the run wall time on terminal events.
	Dur time.Duration
	// Note carries the error text of failed runs.
	Note string
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Stage == StageJobDone || e.Stage == StageJobError
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StagePoll, StageJobDone, StageJobError, StageStopRequested:
		if e.RunID == "" {
			return fmt.Errorf("%s requires run id", e.Stage)
		}
	case StageLimits:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
