// Package tui renders the live job dashboard behind `scrapectl watch`.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/scrapectl/internal/artifact"
	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/limits"
)

// DefaultRefresh is how often the dashboard re-reads controller state.
const DefaultRefresh = 250 * time.Millisecond

// commandTimeout bounds stop, refresh and download commands.
const commandTimeout = 30 * time.Second

// Controller is the part of the job controller the dashboard drives.
type Controller interface {
	State() job.State
	ArtifactsReady() bool
	Stop(ctx context.Context) error
	Limits() *limits.Monitor
}

// RetrieveFunc stores one artifact kind of runID.
type RetrieveFunc func(ctx context.Context, kind artifact.Kind, runID string) (artifact.Result, error)

// Options configures the dashboard.
type Options struct {
	Controller Controller
	Retrieve   RetrieveFunc
	Refresh    time.Duration
	// ExitOnDone quits once the run reaches a terminal phase.
	ExitOnDone bool
}

type refreshMsg time.Time

type stopMsg struct{ err error }

type limitsMsg struct{ err error }

type retrieveMsg struct {
	results []artifact.Result
	err     error
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	ctrl       Controller
	retrieve   RetrieveFunc
	refresh    time.Duration
	exitOnDone bool

	spinner  spinner.Model
	bar      progress.Model
	state    job.State
	ready    bool
	limits   []limits.Assessment
	width    int
	status   string
	busy     bool
	quitting bool
}

// New builds a Model. Controller is required.
func New(opts Options) (Model, error) {
	if opts.Controller == nil {
		return Model{}, errors.New("controller is required")
	}
	refresh := opts.Refresh
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = warnStyle
	m := Model{
		ctrl:       opts.Controller,
		retrieve:   opts.Retrieve,
		refresh:    refresh,
		exitOnDone: opts.ExitOnDone,
		spinner:    sp,
		bar:        progress.New(progress.WithDefaultGradient()),
	}
	m.sync()
	return m, nil
}

// Run starts the dashboard on the alternate screen and blocks until quit.
func Run(opts Options) error {
	m, err := New(opts)
	if err != nil {
		return err
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = clampInt(msg.Width-8, 20, 80)
		return m, nil
	case refreshMsg:
		m.sync()
		if m.exitOnDone && m.state.Phase.Terminal() && !m.busy {
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case stopMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "stop failed: " + msg.err.Error()
		} else {
			m.status = "stop requested; waiting for the job to halt"
		}
		return m, nil
	case limitsMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "limits refresh failed: " + msg.err.Error()
		} else {
			m.status = "limits refreshed"
		}
		m.sync()
		return m, nil
	case retrieveMsg:
		m.busy = false
		m.status = describeRetrieval(msg.results, msg.err)
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit
	case "s":
		if m.state.Phase != job.PhaseRunning {
			m.status = "no running job to stop"
			return m, nil
		}
		m.busy = true
		m.status = "requesting stop..."
		return m, stopCmd(m.ctrl)
	case "r":
		if m.ctrl.Limits() == nil {
			m.status = "limits monitor not configured"
			return m, nil
		}
		m.busy = true
		m.status = "refreshing limits..."
		return m, refreshLimitsCmd(m.ctrl.Limits())
	case "d":
		if !m.ready {
			m.status = "artifacts are available after a successful run"
			return m, nil
		}
		if m.retrieve == nil {
			m.status = "no artifact store configured"
			return m, nil
		}
		m.busy = true
		m.status = "downloading artifacts..."
		return m, retrieveCmd(m.retrieve, m.state.RunID)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	header := titleStyle.Render("scrapectl watch") + "\n" +
		mutedStyle.Render("s: stop | r: refresh limits | d: download artifacts | q: quit")

	stateBlock := RenderState(m.state, m.ready)
	if m.state.Phase == job.PhaseRunning {
		stateBlock = m.spinner.View() + " " + stateBlock
		if f, ok := Fraction(m.state.Status.Progress); ok {
			stateBlock += "\n" + m.bar.ViewAs(f)
		}
	}
	panelW := clampInt(width-2, 40, 120)
	body := lipgloss.JoinVertical(lipgloss.Left,
		panelStyle.Width(panelW).Render(stateBlock),
		panelStyle.Width(panelW).Render(RenderLimits(m.limits)),
	)
	status := m.status
	if status == "" {
		status = " "
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, mutedStyle.Render(status))
}

func (m *Model) sync() {
	m.state = m.ctrl.State()
	m.ready = m.ctrl.ArtifactsReady()
	if mon := m.ctrl.Limits(); mon != nil {
		m.limits = mon.Assessments()
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func stopCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return stopMsg{err: ctrl.Stop(ctx)}
	}
}

func refreshLimitsCmd(mon *limits.Monitor) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return limitsMsg{err: mon.Refresh(ctx)}
	}
}

func retrieveCmd(retrieve RetrieveFunc, runID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		var (
			results []artifact.Result
			errs    []error
		)
		for _, kind := range artifact.Kinds {
			res, err := retrieve(ctx, kind, runID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			results = append(results, res)
		}
		return retrieveMsg{results: results, err: errors.Join(errs...)}
	}
}

func describeRetrieval(results []artifact.Result, err error) string {
	parts := make([]string, 0, len(results)+1)
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s -> %s", r.Kind, r.URI))
	}
	if err != nil {
		parts = append(parts, "failed: "+err.Error())
	}
	if len(parts) == 0 {
		return "nothing downloaded"
	}
	return strings.Join(parts, "; ")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
