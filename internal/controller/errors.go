package controller

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/scrapectl/internal/jobapi"
)

// ErrJobActive is returned when a command needs an idle job but one is
// running or starting.
var ErrJobActive = errors.New("a job is already running")

// ErrNoRun is returned by WaitTerminal before any run was started.
var ErrNoRun = errors.New("no run has been started")

// FilterRejectedError reports that the remote job refused the filter
// configuration.
type FilterRejectedError struct {
	Status int
	Body   string
	Err    error
}

func (e *FilterRejectedError) Error() string {
	return fmt.Sprintf("filters rejected (status %d): %s", e.Status, e.Body)
}

func (e *FilterRejectedError) Unwrap() error { return e.Err }

// JobStartError reports a non-success response to a start request.
type JobStartError struct {
	Status int
	Body   string
	Err    error
}

func (e *JobStartError) Error() string {
	return fmt.Sprintf("job start refused (status %d): %s", e.Status, e.Body)
}

func (e *JobStartError) Unwrap() error { return e.Err }

// StopRequestError reports a non-success response to a stop request.
type StopRequestError struct {
	Status int
	Body   string
	Err    error
}

func (e *StopRequestError) Error() string {
	return fmt.Sprintf("stop request refused (status %d): %s", e.Status, e.Body)
}

func (e *StopRequestError) Unwrap() error { return e.Err }

// PollTransportError reports a failed status poll: network error, non-2xx
// response or timeout. It ends the run as failed.
type PollTransportError struct {
	Err error
}

func (e *PollTransportError) Error() string {
	return fmt.Sprintf("status poll failed: %v", e.Err)
}

func (e *PollTransportError) Unwrap() error { return e.Err }

// classify turns a command failure into the typed error built by mk when the
// remote answered with a non-2xx status, or wraps it with op otherwise.
func classify(op string, err error, mk func(status int, body string, err error) error) error {
	if se, ok := jobapi.AsStatusError(err); ok {
		return mk(se.StatusCode, se.Body, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
