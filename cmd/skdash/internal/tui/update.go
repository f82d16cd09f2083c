// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/workflow"
)

// Update handles all TUI events and messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		m.setSnapshot(msg.Snapshot)
		return m, WaitForSnapshotCmd(m.updates)

	case StepDoneMsg:
		m.finishRun()
		switch {
		case !msg.Ran:
			m.lastError = refusal(m.snap, msg.Step).Error()
		case msg.Err != nil:
			m.lastError = msg.Err.Error()
		default:
			m.lastInfo = fmt.Sprintf("✓ %s", msg.Step)
		}
		m.cursor = cursorFor(m.snap)
		return m, nil

	case RunAllDoneMsg:
		m.finishRun()
		if msg.Err != nil {
			m.lastError = msg.Err.Error()
		} else {
			m.lastInfo = "✓ all steps completed"
		}
		m.cursor = cursorFor(m.snap)
		return m, nil
	}

	return m, nil
}

// handleKeyPress routes key presses
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.cancel != nil {
			m.cancel()
		}
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.running && m.cancel != nil {
			m.cancel()
			m.lastInfo = "cancelling..."
		}
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.snap.Steps)-1 {
			m.cursor++
		}
		return m, nil
	}

	// Everything below changes workflow state
	m.lastError = ""
	m.lastInfo = ""

	switch msg.String() {
	case "enter":
		st, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m.startRun(st.Step, false)

	case "n":
		if m.snap.Current == workflow.Done {
			m.lastInfo = "all steps completed (press 'r' to start over)"
			return m, nil
		}
		return m.startRun(m.snap.Current, false)

	case "a":
		return m.startRun(m.snap.Current, true)

	case " ", "t":
		st, ok := m.selected()
		if !ok {
			return m, nil
		}
		if !m.flow.ToggleCollapse(st.Step) {
			m.lastError = fmt.Sprintf("%s has no output to collapse", st.Step)
		}
		m.setSnapshot(m.flow.Snapshot())

	case "p":
		next := cycle(util.PermissionTypes(), m.snap.Settings.PermissionType)
		if err := m.flow.SetPermissionType(next); err != nil {
			m.lastError = err.Error()
		}
		m.setSnapshot(m.flow.Snapshot())

	case "d":
		next := cycle(util.SessionTimes(), m.snap.Settings.SessionTime)
		if err := m.flow.SetSessionTime(next); err != nil {
			m.lastError = err.Error()
		}
		m.setSnapshot(m.flow.Snapshot())

	case "r":
		if !m.flow.Reset() {
			m.lastError = "cannot reset while a step is running"
			return m, nil
		}
		m.setSnapshot(m.flow.Snapshot())
		m.cursor = cursorFor(m.snap)
		m.lastInfo = "workflow reset"
	}

	return m, nil
}

// startRun runs n (or every remaining step when all is set) in the background.
func (m Model) startRun(n workflow.Step, all bool) (tea.Model, tea.Cmd) {
	if m.running {
		m.lastError = "another step is running"
		return m, nil
	}
	if all && m.snap.Current == workflow.Done {
		m.lastInfo = "all steps completed (press 'r' to start over)"
		return m, nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.running = true
	m.runAll = all
	m.cancel = cancel

	if all {
		return m, RunAllCmd(ctx, cancel, m.flow)
	}
	return m, RunStepCmd(ctx, cancel, m.flow, n)
}

func (m *Model) finishRun() {
	m.running = false
	m.runAll = false
	m.cancel = nil
	m.setSnapshot(m.flow.Snapshot())
}

func (m *Model) setSnapshot(s workflow.Snapshot) {
	m.snap = s
	if m.cursor >= len(s.Steps) {
		m.cursor = len(s.Steps) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// RunStepCmd runs one step.
func RunStepCmd(ctx context.Context, cancel context.CancelFunc, flow Flow, n workflow.Step) tea.Cmd {
	return func() tea.Msg {
		defer cancel()
		ran, err := flow.Run(ctx, n)
		return StepDoneMsg{Step: n, Ran: ran, Err: err}
	}
}

// RunAllCmd runs the current step repeatedly until every step is done or one
// fails.
func RunAllCmd(ctx context.Context, cancel context.CancelFunc, flow Flow) tea.Cmd {
	return func() tea.Msg {
		defer cancel()
		var last workflow.Step
		for {
			snap := flow.Snapshot()
			if snap.Current == workflow.Done {
				return RunAllDoneMsg{Last: last}
			}
			last = snap.Current
			ran, err := flow.Run(ctx, last)
			if !ran {
				return RunAllDoneMsg{Last: last, Err: refusal(flow.Snapshot(), last)}
			}
			if err != nil {
				return RunAllDoneMsg{Last: last, Err: err}
			}
		}
	}
}

// refusal explains why n did not run.
func refusal(snap workflow.Snapshot, n workflow.Step) error {
	switch {
	case !n.Valid():
		return errors.New("no step selected")
	case snap.Running != 0:
		return fmt.Errorf("cannot run %s: another step is running", n)
	case n > snap.Current:
		return fmt.Errorf("cannot run %s yet: complete %s first", n, snap.Current)
	case n == workflow.StepSignerAddress:
		return fmt.Errorf("cannot run %s: no signer loaded (use 'keygen' in skshell)", n)
	}
	if st, ok := snap.StepState(n); ok && st.Completed && n == workflow.StepSignAndSend {
		return fmt.Errorf("cannot run %s: already submitted (run %s again to build a new call)", n, workflow.StepPrepareCalls)
	}
	return fmt.Errorf("cannot run %s with the current selections", n)
}

// cycle returns the option after cur, wrapping around.
func cycle(options []string, cur string) string {
	for i, o := range options {
		if o == cur {
			return options[(i+1)%len(options)]
		}
	}
	return options[0]
}
