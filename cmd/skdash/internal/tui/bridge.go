// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/skflow/skflow/internal/workflow"
)

// Bridge carries workflow snapshots from the orchestrator's listener to the
// tea program. Only the latest snapshot is kept.
type Bridge struct {
	ch chan workflow.Snapshot
}

// NewBridge creates an empty Bridge.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan workflow.Snapshot, 1)}
}

// Publish replaces any pending snapshot with s. It never blocks.
func (b *Bridge) Publish(s workflow.Snapshot) {
	select {
	case <-b.ch:
	default:
	}
	select {
	case b.ch <- s:
	default:
	}
}

// Listener returns a workflow.Listener that publishes to b.
func (b *Bridge) Listener() workflow.Listener {
	return b.Publish
}

// WaitForSnapshotCmd waits for the next published snapshot.
func WaitForSnapshotCmd(b *Bridge) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		return SnapshotMsg{Snapshot: <-b.ch}
	}
}
