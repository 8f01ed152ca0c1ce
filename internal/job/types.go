package job

import "time"

// Status mirrors the remote job state returned by GET /status. It is
// read-only to the client and replaced wholesale on every poll.
type Status struct {
	Running  bool     `json:"running"`
	Error    *string  `json:"error"`
	Progress Progress `json:"progress"`
}

// Terminal reports whether the remote job is no longer running.
func (s Status) Terminal() bool {
	return !s.Running
}

// Failed reports whether the status carries an error message.
func (s Status) Failed() bool {
	return s.Error != nil
}

// ErrorText returns the error message or "" when absent.
func (s Status) ErrorText() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}

// Progress is the granular progress reported by the remote job. Every field
// is optional; a job that has not started reporting leaves them all nil.
type Progress struct {
	CurrentPage    *int `json:"current_page,omitempty"`
	StartPage      *int `json:"start_page,omitempty"`
	EndPage        *int `json:"end_page,omitempty"`
	ChannelIndex   *int `json:"channel_index,omitempty"`
	ChannelsOnPage *int `json:"channels_on_page,omitempty"`
}

// Empty reports whether no progress field is set.
func (p Progress) Empty() bool {
	return p.CurrentPage == nil && p.StartPage == nil && p.EndPage == nil &&
		p.ChannelIndex == nil && p.ChannelsOnPage == nil
}

// Severity classifies a quota counter.
type Severity string

// Known severities. Gate limits sit on the critical path of a run; warn
// limits are advisory.
const (
	SeverityGate Severity = "gate"
	SeverityWarn Severity = "warn"
)

// Known reports whether s is one of the severities the remote defines.
func (s Severity) Known() bool {
	return s == SeverityGate || s == SeverityWarn
}

// LimitItem is one named quota counter.
type LimitItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Current     int      `json:"current"`
	Maximum     int      `json:"maximum"`
	Severity    Severity `json:"severity"`
}

// Limits is an ordered snapshot of quota counters in display order.
type Limits []LimitItem

// Clone returns an independent copy of the snapshot.
func (l Limits) Clone() Limits {
	if l == nil {
		return nil
	}
	out := make(Limits, len(l))
	copy(out, l)
	return out
}

// FileInfo describes one downloadable artifact on the remote side.
type FileInfo struct {
	Exists bool  `json:"exists"`
	Size   int64 `json:"size"`
}

// FilesInfo is the response of GET /files-info keyed by download endpoint.
type FilesInfo map[string]FileInfo

// Phase is the client-side lifecycle of the current run.
type Phase string

// Phases of the controller state machine. Completed and Failed are terminal:
// no polling occurs until a new start.
const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// State is a point-in-time copy of the controller's view of the job.
type State struct {
	Phase      Phase      `json:"phase"`
	RunID      string     `json:"run_id,omitempty"`
	Status     Status     `json:"status"`
	Polls      int        `json:"polls"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}
