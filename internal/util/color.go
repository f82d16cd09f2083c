// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// ANSI colour codes used by the shell.
const (
	ColorGreen  = "32"
	ColorYellow = "33"
	ColorRed    = "31"
	ColorGray   = "90"
)

// supportsColor checks if the terminal supports ANSI color codes
func supportsColor() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) { // #nosec G115 - file descriptors are small integers
		return false
	}

	termEnv := os.Getenv("TERM")
	if termEnv == "" || termEnv == "dumb" {
		return false
	}

	return true
}

// Colorize wraps s in the given ANSI colour when stdout is a colour terminal.
func Colorize(s, colorCode string) string {
	if colorCode == "" || !supportsColor() {
		return s
	}
	return fmt.Sprintf("\033[%sm%s\033[0m", colorCode, s)
}
