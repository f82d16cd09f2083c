// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/skflow/skflow/internal/command"
	"github.com/skflow/skflow/internal/engine"
	"github.com/skflow/skflow/internal/scripting"
)

// Shell holds the state of one skshell session.
type Shell struct {
	Engine   *engine.Engine
	Registry *command.Registry

	// JSRunner is created on first use and kept so js lines share state.
	JSRunner scripting.Runner

	out io.Writer

	// ReadSecret prompts for input without echo.
	ReadSecret func(prompt string) ([]byte, error)

	// ReadLine prompts for one line of input.
	ReadLine func(prompt string) (string, error)
}

// NewShell creates a shell around eng writing to out.
func NewShell(eng *engine.Engine, out io.Writer) *Shell {
	s := &Shell{
		Engine:     eng,
		out:        out,
		ReadSecret: readSecret,
		ReadLine:   readLineStdin,
	}
	s.Registry = s.initCommandRegistry()
	return s
}

func (s *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) println(args ...any) {
	_, _ = fmt.Fprintln(s.out, args...)
}

// jsRunner returns the persistent script runner.
func (s *Shell) jsRunner() scripting.Runner {
	if s.JSRunner == nil {
		r := scripting.NewGojaRunner(s.Engine.ScriptDeps())
		r.SetOutput(func(msg string) { s.println(msg) })
		s.JSRunner = r
	}
	return s.JSRunner
}

// readSecret reads a line from the terminal without echo.
func readSecret(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) // #nosec G115 - file descriptors are small integers
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return b, nil
}

func readLineStdin(prompt string) (string, error) {
	fmt.Print(prompt)
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return line, nil
}
