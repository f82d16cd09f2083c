// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/skflow/skflow/internal/workflow"
)

// fakeFlow completes steps in order without any I/O.
type fakeFlow struct {
	settings  workflow.Settings
	completed map[workflow.Step]bool
	collapsed map[workflow.Step]bool
	failAt    workflow.Step
	refuse    bool
	runs      []workflow.Step
}

func newFakeFlow() *fakeFlow {
	return &fakeFlow{
		settings: workflow.Settings{
			ChainID:        "0xaa36a7",
			PermissionType: "root",
			SessionTime:    "1hour",
		},
		completed: map[workflow.Step]bool{},
		collapsed: map[workflow.Step]bool{},
	}
}

func (f *fakeFlow) current() workflow.Step {
	for _, s := range workflow.Steps {
		if !f.completed[s] {
			return s
		}
	}
	return workflow.Done
}

func (f *fakeFlow) Snapshot() workflow.Snapshot {
	snap := workflow.Snapshot{Settings: f.settings, Current: f.current()}
	for _, s := range workflow.Steps {
		snap.Steps = append(snap.Steps, workflow.StepState{
			Step:      s,
			Name:      s.String(),
			Completed: f.completed[s],
			Collapsed: f.collapsed[s],
			Runnable:  s == snap.Current && !f.refuse,
		})
	}
	if f.completed[workflow.StepSignerAddress] {
		snap.SignerAddress = "0x1111111111111111111111111111111111111111"
	}
	return snap
}

func (f *fakeFlow) Run(_ context.Context, n workflow.Step) (bool, error) {
	if f.refuse || n > f.current() || (n == workflow.StepSignAndSend && f.completed[n]) {
		return false, nil
	}
	f.runs = append(f.runs, n)
	if n == f.failAt {
		return true, errors.New(n.String() + " failed: backend unavailable")
	}
	f.completed[n] = true
	return true, nil
}

func (f *fakeFlow) ToggleCollapse(n workflow.Step) bool {
	if !f.completed[n] {
		return false
	}
	f.collapsed[n] = !f.collapsed[n]
	return true
}

func (f *fakeFlow) Reset() bool {
	f.completed = map[workflow.Step]bool{}
	f.collapsed = map[workflow.Step]bool{}
	return true
}

func (f *fakeFlow) SetPermissionType(p string) error {
	f.settings.PermissionType = p
	return nil
}

func (f *fakeFlow) SetSessionTime(d string) error {
	f.settings.SessionTime = d
	return nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs any resulting command to completion, feeding its
// message back into the model.
func press(t *testing.T, m Model, s string) Model {
	t.Helper()
	next, cmd := m.Update(key(s))
	m = next.(Model)
	if cmd != nil {
		if msg := cmd(); msg != nil {
			next, _ = m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

func TestNewModelStartsAtCurrentStep(t *testing.T) {
	f := newFakeFlow()
	f.completed[workflow.StepSignerAddress] = true
	m := NewModel(context.Background(), f, nil)

	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
}

func TestRunCompletedSendRefused(t *testing.T) {
	f := newFakeFlow()
	for _, s := range workflow.Steps {
		f.completed[s] = true
	}
	m := NewModel(context.Background(), f, nil)
	if st, _ := m.selected(); st.Step != workflow.StepSignAndSend {
		t.Fatalf("selected = %v, want sign-and-send", st.Step)
	}

	m = press(t, m, "enter")
	if len(f.runs) != 0 {
		t.Errorf("runs = %v, want none", f.runs)
	}
	if !strings.Contains(m.lastError, "already submitted") {
		t.Errorf("lastError = %q", m.lastError)
	}
}

func TestNavigationClamps(t *testing.T) {
	m := NewModel(context.Background(), newFakeFlow(), nil)

	m = press(t, m, "up")
	if m.cursor != 0 {
		t.Errorf("cursor after up = %d, want 0", m.cursor)
	}
	for range 10 {
		m = press(t, m, "j")
	}
	if m.cursor != len(workflow.Steps)-1 {
		t.Errorf("cursor after many downs = %d, want %d", m.cursor, len(workflow.Steps)-1)
	}
}

func TestRunNextStep(t *testing.T) {
	f := newFakeFlow()
	m := NewModel(context.Background(), f, nil)

	m = press(t, m, "n")
	if m.running {
		t.Error("model still running after step finished")
	}
	if m.lastInfo != "✓ signer-address" {
		t.Errorf("lastInfo = %q", m.lastInfo)
	}
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
	if !strings.Contains(m.View(), "signer:  0x1111") {
		t.Error("view does not show the signer address")
	}
}

func TestRunSelectedStepRefused(t *testing.T) {
	m := NewModel(context.Background(), newFakeFlow(), nil)

	m = press(t, m, "down")
	m = press(t, m, "down")
	m = press(t, m, "enter")

	want := "cannot run create-session yet: complete signer-address first"
	if m.lastError != want {
		t.Errorf("lastError = %q, want %q", m.lastError, want)
	}
}

func TestRunWhileRunning(t *testing.T) {
	m := NewModel(context.Background(), newFakeFlow(), nil)

	next, cmd := m.Update(key("n"))
	m = next.(Model)
	if cmd == nil || !m.running {
		t.Fatal("expected a running step")
	}
	next, second := m.Update(key("n"))
	m = next.(Model)
	if second != nil {
		t.Error("second run was started")
	}
	if m.lastError != "another step is running" {
		t.Errorf("lastError = %q", m.lastError)
	}
}

func TestRunAll(t *testing.T) {
	f := newFakeFlow()
	m := NewModel(context.Background(), f, nil)

	m = press(t, m, "a")
	if len(f.runs) != len(workflow.Steps) {
		t.Errorf("ran %d steps, want %d", len(f.runs), len(workflow.Steps))
	}
	if m.lastError != "" {
		t.Errorf("lastError = %q", m.lastError)
	}
	if !strings.Contains(m.View(), "All steps completed") {
		t.Error("view does not report completion")
	}

	// Nothing left to run
	m = press(t, m, "a")
	if !strings.Contains(m.lastInfo, "all steps completed") {
		t.Errorf("lastInfo = %q", m.lastInfo)
	}
}

func TestRunAllStopsOnFailure(t *testing.T) {
	f := newFakeFlow()
	f.failAt = workflow.StepAuthorizeSession
	m := NewModel(context.Background(), f, nil)

	m = press(t, m, "a")
	if len(f.runs) != 4 {
		t.Errorf("ran %v, want to stop at authorize-session", f.runs)
	}
	if !strings.Contains(m.lastError, "authorize-session failed") {
		t.Errorf("lastError = %q", m.lastError)
	}
	if m.snap.Current != workflow.StepAuthorizeSession {
		t.Errorf("Current = %v", m.snap.Current)
	}
}

func TestRunAllRefusedWithoutSigner(t *testing.T) {
	f := newFakeFlow()
	f.refuse = true
	m := NewModel(context.Background(), f, nil)

	m = press(t, m, "a")
	if !strings.Contains(m.lastError, "no signer loaded") {
		t.Errorf("lastError = %q", m.lastError)
	}
}

func TestToggleCollapse(t *testing.T) {
	f := newFakeFlow()
	m := NewModel(context.Background(), f, nil)

	m = press(t, m, " ")
	if !strings.Contains(m.lastError, "no output to collapse") {
		t.Errorf("lastError = %q", m.lastError)
	}

	m = press(t, m, "n")
	m = press(t, m, "up")
	m = press(t, m, "t")
	if !f.collapsed[workflow.StepSignerAddress] {
		t.Fatal("signer-address not collapsed")
	}
	view := m.View()
	if strings.Contains(view, "signer:  0x1111") {
		t.Error("collapsed step still shows its output")
	}
	if !strings.Contains(view, "(collapsed)") {
		t.Error("collapsed marker missing")
	}
}

func TestCycleSelections(t *testing.T) {
	f := newFakeFlow()
	m := NewModel(context.Background(), f, nil)

	m = press(t, m, "p")
	if f.settings.PermissionType != "native-token-transfer" {
		t.Errorf("PermissionType = %q", f.settings.PermissionType)
	}
	m = press(t, m, "d")
	if f.settings.SessionTime != "1day" {
		t.Errorf("SessionTime = %q", f.settings.SessionTime)
	}
	m = press(t, m, "d")
	if f.settings.SessionTime != "5min" {
		t.Errorf("SessionTime after wrap = %q", f.settings.SessionTime)
	}
	if !strings.Contains(m.View(), "session 5min") {
		t.Error("view does not show the new duration")
	}
}

func TestReset(t *testing.T) {
	f := newFakeFlow()
	m := NewModel(context.Background(), f, nil)

	m = press(t, m, "a")
	m = press(t, m, "r")
	if m.snap.Current != workflow.StepSignerAddress {
		t.Errorf("Current = %v after reset", m.snap.Current)
	}
	if m.cursor != 0 {
		t.Errorf("cursor = %d after reset", m.cursor)
	}
}

func TestQuit(t *testing.T) {
	m := NewModel(context.Background(), newFakeFlow(), nil)

	next, cmd := m.Update(key("q"))
	m = next.(Model)
	if cmd == nil || !m.quitting {
		t.Fatal("q did not quit")
	}
	if m.View() != "Goodbye!\n" {
		t.Errorf("View() = %q", m.View())
	}
}

func TestBridgeKeepsLatestSnapshot(t *testing.T) {
	b := NewBridge()
	listener := b.Listener()
	listener(workflow.Snapshot{Current: workflow.StepSignerAddress})
	listener(workflow.Snapshot{Current: workflow.StepPrepareCalls})

	msg := WaitForSnapshotCmd(b)()
	snap, ok := msg.(SnapshotMsg)
	if !ok {
		t.Fatalf("msg = %T", msg)
	}
	if snap.Snapshot.Current != workflow.StepPrepareCalls {
		t.Errorf("Current = %v, want prepare-calls", snap.Snapshot.Current)
	}
	if WaitForSnapshotCmd(nil) != nil {
		t.Error("nil bridge should give a nil command")
	}
}

func TestSnapshotMsgUpdatesView(t *testing.T) {
	f := newFakeFlow()
	b := NewBridge()
	m := NewModel(context.Background(), f, b)

	f.completed[workflow.StepSignerAddress] = true
	next, cmd := m.Update(SnapshotMsg{Snapshot: f.Snapshot()})
	m = next.(Model)
	if cmd == nil {
		t.Error("model stopped listening for snapshots")
	}
	if m.snap.Current != workflow.StepProvisionAccount {
		t.Errorf("Current = %v", m.snap.Current)
	}
}
