// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/skflow/skflow/internal/workflow"
)

// Flow is the part of the orchestrator the dashboard drives.
// *workflow.Orchestrator implements it.
type Flow interface {
	Snapshot() workflow.Snapshot
	Run(ctx context.Context, n workflow.Step) (bool, error)
	ToggleCollapse(n workflow.Step) bool
	Reset() bool
	SetPermissionType(p string) error
	SetSessionTime(d string) error
}

// Model is the dashboard application model
type Model struct {
	flow    Flow
	updates *Bridge
	ctx     context.Context

	snap   workflow.Snapshot
	cursor int // index into snap.Steps

	// running is true while a Run command issued by this model is in flight
	running bool
	runAll  bool
	cancel  context.CancelFunc

	lastInfo  string
	lastError string

	width    int
	height   int
	quitting bool
}

// NewModel creates a dashboard over flow. updates may be nil, in which case
// the view refreshes only after the dashboard's own actions.
func NewModel(ctx context.Context, flow Flow, updates *Bridge) Model {
	snap := flow.Snapshot()
	return Model{
		flow:    flow,
		updates: updates,
		ctx:     ctx,
		snap:    snap,
		cursor:  cursorFor(snap),
	}
}

// Init starts listening for workflow changes
func (m Model) Init() tea.Cmd {
	return WaitForSnapshotCmd(m.updates)
}

// cursorFor points at the current step, or the last step once all are done.
func cursorFor(snap workflow.Snapshot) int {
	if len(snap.Steps) == 0 {
		return 0
	}
	for i, st := range snap.Steps {
		if st.Step == snap.Current {
			return i
		}
	}
	return len(snap.Steps) - 1
}

func (m Model) selected() (workflow.StepState, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Steps) {
		return workflow.StepState{}, false
	}
	return m.snap.Steps[m.cursor], true
}

// Tea messages for async operations

// SnapshotMsg carries a workflow state change
type SnapshotMsg struct {
	Snapshot workflow.Snapshot
}

// StepDoneMsg is sent when a step run finishes
type StepDoneMsg struct {
	Step workflow.Step
	Ran  bool
	Err  error
}

// RunAllDoneMsg is sent when a run-all sequence stops
type RunAllDoneMsg struct {
	Last workflow.Step
	Err  error
}
