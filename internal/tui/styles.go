package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/limits"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	badgeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("160")).Bold(true)
)

// Warn limits are advisory and get a softer palette than gate limits at
// the same tier.
var (
	softCriticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("210"))
	softWarningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("222"))
	softNormalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("108"))
)

func tierStyle(a limits.Assessment) lipgloss.Style {
	if a.Item.Severity == job.SeverityGate {
		switch a.Tier {
		case limits.TierCritical:
			return errorStyle
		case limits.TierWarning:
			return warnStyle
		default:
			return okStyle
		}
	}
	switch a.Tier {
	case limits.TierCritical:
		return softCriticalStyle
	case limits.TierWarning:
		return softWarningStyle
	default:
		return softNormalStyle
	}
}

func phaseStyle(p job.Phase) lipgloss.Style {
	switch p {
	case job.PhaseCompleted:
		return okStyle
	case job.PhaseFailed:
		return errorStyle
	case job.PhaseRunning:
		return warnStyle
	default:
		return mutedStyle
	}
}
