// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/workflow"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			PaddingLeft(6)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("255")).
			Bold(true)

	normalStyle = lipgloss.NewStyle()

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("skdash - session key workflow"))
	b.WriteString("\n")
	b.WriteString(m.renderSettings())
	b.WriteString("\n\n")
	b.WriteString(panelStyle.Render(m.renderSteps()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • enter run • n next • a all • space collapse • p permission • d duration • r reset • esc cancel • q quit"))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderSettings() string {
	s := m.snap.Settings
	return subtitleStyle.Render(fmt.Sprintf("Chain %s • permission %s • session %s • call to %s",
		util.ChainName(s.ChainID), s.PermissionType, s.SessionTime, orNone(s.Call.To)))
}

// renderSteps lists every step; collapsed steps show only their title.
func (m Model) renderSteps() string {
	var lines []string
	for i, st := range m.snap.Steps {
		mark, style := stepMarker(st)
		title := fmt.Sprintf(" %s %d. %s", mark, int(st.Step), st.Name)
		if st.Collapsed {
			title += " (collapsed)"
		}
		if i == m.cursor {
			lines = append(lines, selectedStyle.Render(title))
		} else {
			lines = append(lines, style.Render(title))
		}

		if st.Error != "" {
			lines = append(lines, detailStyle.Inherit(errorStyle).Render(st.Error))
		}
		if st.Running && st.Step == workflow.StepSignAndSend && m.snap.Polling {
			lines = append(lines, detailStyle.Render(fmt.Sprintf("polling call status (attempt %d)", m.snap.PollAttempt)))
		}
		if st.Collapsed || !st.Completed {
			continue
		}
		for _, line := range m.snap.Details(st.Step) {
			lines = append(lines, detailStyle.Render(line))
		}
	}
	return strings.Join(lines, "\n")
}

// stepMarker returns the status glyph and style for a step.
func stepMarker(st workflow.StepState) (string, lipgloss.Style) {
	switch {
	case st.Running:
		return "…", runningStyle
	case st.Error != "":
		return "✗", errorStyle
	case st.Completed:
		return "✓", completedStyle
	case st.Runnable:
		return "→", normalStyle
	default:
		return " ", pendingStyle
	}
}

// renderStatusBar renders the bottom status bar
func (m Model) renderStatusBar() string {
	var parts []string

	switch {
	case m.runAll:
		parts = append(parts, runningStyle.Render("Running all steps..."))
	case m.running:
		parts = append(parts, runningStyle.Render("Running..."))
	case m.snap.Current == workflow.Done:
		parts = append(parts, completedStyle.Render("All steps completed"))
	default:
		parts = append(parts, subtitleStyle.Render("Next: "+m.snap.Current.String()))
	}

	if m.lastInfo != "" {
		parts = append(parts, infoStyle.Render(m.lastInfo))
	}
	if m.lastError != "" {
		parts = append(parts, errorStyle.Render("Error: "+m.lastError))
	}

	return helpStyle.Render(strings.Join(parts, " | "))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
