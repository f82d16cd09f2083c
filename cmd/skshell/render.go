// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"fmt"

	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/workflow"
)

// stepMarker returns the status glyph and colour for a step.
func stepMarker(st workflow.StepState) (string, string) {
	switch {
	case st.Running:
		return "…", util.ColorYellow
	case st.Error != "":
		return "✗", util.ColorRed
	case st.Completed:
		return "✓", util.ColorGreen
	case st.Runnable:
		return "→", ""
	default:
		return " ", util.ColorGray
	}
}

// renderStatus prints every step; collapsed steps show only their title.
func (s *Shell) renderStatus(snap workflow.Snapshot) {
	s.printf("Chain %s, permission %s, session %s\n",
		util.ChainName(snap.Settings.ChainID), snap.Settings.PermissionType, snap.Settings.SessionTime)

	for _, st := range snap.Steps {
		mark, color := stepMarker(st)
		s.printf("%s\n", util.Colorize(fmt.Sprintf(" %s %d. %s", mark, int(st.Step), st.Name), color))
		if st.Error != "" {
			s.printf("      %s\n", util.Colorize(st.Error, util.ColorRed))
		}
		if st.Collapsed || !st.Completed {
			if st.Step == workflow.StepSignAndSend && snap.Polling {
				s.printf("      polling call status (attempt %d)\n", snap.PollAttempt)
			}
			continue
		}
		for _, line := range snap.Details(st.Step) {
			s.printf("      %s\n", line)
		}
	}
	if snap.Current == workflow.Done {
		s.println(util.Colorize(" All steps completed", util.ColorGreen))
	}
}
