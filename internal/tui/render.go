package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/JakeFAU/scrapectl/internal/artifact"
	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/limits"
)

// RenderLimits draws the assessed quota table. Gate items at the critical
// tier carry a badge; out-of-range counts are marked.
func RenderLimits(items []limits.Assessment) string {
	if len(items) == 0 {
		return mutedStyle.Render("No limits fetched yet.")
	}
	nameW := len("LIMIT")
	for _, a := range items {
		nameW = max(nameW, len(a.Item.Name))
	}
	lines := make([]string, 0, len(items)+1)
	lines = append(lines, mutedStyle.Render(fmt.Sprintf("%-*s  %11s  %6s  %-8s  %s", nameW, "LIMIT", "REMAINING", "RATIO", "TIER", "")))
	for _, a := range items {
		tier := tierStyle(a).Render(fmt.Sprintf("%-8s", a.Tier))
		row := fmt.Sprintf("%-*s  %5d/%-5d  %5.0f%%  %s",
			nameW, a.Item.Name, a.Item.Current, a.Item.Maximum, a.Ratio*100, tier)
		var notes []string
		if a.Badge {
			notes = append(notes, badgeStyle.Render(" GATE "))
		}
		if a.Anomaly {
			notes = append(notes, errorStyle.Render("out of range"))
		}
		if a.UnknownSeverity {
			notes = append(notes, errorStyle.Render("unknown severity "+strconv.Quote(string(a.Item.Severity))))
		}
		if a.Item.Description != "" {
			notes = append(notes, mutedStyle.Render(a.Item.Description))
		}
		if len(notes) > 0 {
			row += "  " + strings.Join(notes, " ")
		}
		lines = append(lines, row)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderAvailability draws which artifacts the remote currently holds.
func RenderAvailability(items []artifact.Availability) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("KIND", "READY", "SIZE").
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return base.Inherit(mutedStyle)
			}
			if col == 1 && row >= 0 && row < len(items) {
				if items[row].Exists {
					return base.Inherit(okStyle)
				}
				return base.Inherit(mutedStyle)
			}
			return base
		})
	for _, av := range items {
		t.Row(string(av.Kind), strconv.FormatBool(av.Exists), strconv.FormatInt(av.Size, 10))
	}
	return t.String()
}

// RenderProgress describes p in one line, e.g. "page 3 (2..5), channel 4/20".
func RenderProgress(p job.Progress) string {
	if p.Empty() {
		return "waiting for progress"
	}
	var parts []string
	if p.CurrentPage != nil {
		page := fmt.Sprintf("page %d", *p.CurrentPage)
		if p.StartPage != nil && p.EndPage != nil {
			page += fmt.Sprintf(" (%d..%d)", *p.StartPage, *p.EndPage)
		}
		parts = append(parts, page)
	}
	if p.ChannelIndex != nil {
		ch := fmt.Sprintf("channel %d", *p.ChannelIndex)
		if p.ChannelsOnPage != nil {
			ch += fmt.Sprintf("/%d", *p.ChannelsOnPage)
		}
		parts = append(parts, ch)
	}
	if len(parts) == 0 {
		return "waiting for progress"
	}
	return strings.Join(parts, ", ")
}

// Fraction estimates overall completion in [0, 1] from the page range and
// the position on the current page. ok is false when the range is unknown.
func Fraction(p job.Progress) (float64, bool) {
	if p.CurrentPage == nil || p.StartPage == nil || p.EndPage == nil {
		return 0, false
	}
	pages := *p.EndPage - *p.StartPage + 1
	if pages <= 0 {
		return 0, false
	}
	done := float64(*p.CurrentPage - *p.StartPage)
	if p.ChannelIndex != nil && p.ChannelsOnPage != nil && *p.ChannelsOnPage > 0 {
		done += float64(*p.ChannelIndex) / float64(*p.ChannelsOnPage)
	}
	f := done / float64(pages)
	switch {
	case f < 0:
		f = 0
	case f > 1:
		f = 1
	}
	return f, true
}

// RenderState is the plain status block shared by the CLI and dashboard.
func RenderState(st job.State, ready bool) string {
	lines := []string{
		"phase: " + phaseStyle(st.Phase).Render(string(st.Phase)),
	}
	if st.RunID != "" {
		lines = append(lines, "run:   "+st.RunID)
	}
	if st.Phase != job.PhaseIdle {
		lines = append(lines, "progress: "+RenderProgress(st.Status.Progress))
		lines = append(lines, fmt.Sprintf("polls: %d", st.Polls))
	}
	if msg := st.Status.ErrorText(); msg != "" {
		lines = append(lines, errorStyle.Render("error: "+msg))
	} else if st.LastError != "" {
		lines = append(lines, errorStyle.Render("error: "+st.LastError))
	}
	if ready {
		lines = append(lines, okStyle.Render("artifacts ready"))
	}
	return strings.Join(lines, "\n")
}
