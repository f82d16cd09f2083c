// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/skflow/skflow/internal/command"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/workflow"
)

// prompt shows the chain and the next step.
func (s *Shell) prompt() string {
	cfg := s.Engine.Config()
	next := s.Engine.Flow.CurrentStep()
	login := ""
	if s.Engine.Identity != nil && s.Engine.Claims() == nil {
		login = "(anon) "
	}
	label := fmt.Sprintf("%d", int(next))
	if next == workflow.Done {
		label = "done"
	}
	return fmt.Sprintf("\033[32m%s%s[%s]>\033[0m ", login, strings.ToLower(cfg.ChainName()), label)
}

// execute runs one line. Ctrl+C cancels a command in flight.
func (s *Shell) execute(line string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return s.Registry.Execute(ctx, line)
}

// handleLine runs a line and reports whether the session should end.
func (s *Shell) handleLine(line string) bool {
	err := s.execute(line)
	switch {
	case err == nil:
		return false
	case isExit(err):
		return true
	case errors.Is(err, context.Canceled):
		s.println("Interrupted")
	default:
		s.printf("Error: %v\n", err)
	}
	return false
}

func (s *Shell) startBasicREPL() {
	s.println("Running in basic mode (no history/completion)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(s.prompt())
		if !scanner.Scan() {
			break
		}
		if s.handleLine(scanner.Text()) {
			break
		}
	}
}

func (s *Shell) startREPL(ctx context.Context) {
	s.println("skshell - session key workflow shell")
	s.println("Type 'help' for available commands or 'quit' to exit")
	s.println("Features: Command history (↑/↓), Tab completion, Ctrl+C to interrupt")
	s.println("Wallet API:", s.Engine.ConnectionStatus())

	if err := s.Engine.WatchConfig(ctx, func(restart bool, err error) {
		switch {
		case err != nil:
			util.Logger.Warn("config reload failed", "error", err)
		case restart:
			util.Logger.Warn("config reloaded; connection settings apply after restart")
		default:
			util.Logger.Info("config reloaded")
		}
	}); err != nil {
		util.Debug("config watcher disabled", "error", err)
	}

	historyFile := filepath.Join(s.Engine.DataDir, ".skshell_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            s.prompt(),
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		AutoComplete:      command.NewCompleter(s.Registry),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		s.printf("Failed to create readline instance, falling back to basic input: %v\n", err)
		s.startBasicREPL()
		return
	}
	defer func() {
		_ = rl.Close() // Best-effort close, errors during shutdown not critical
	}()

	// Secrets and follow-up prompts go through readline so the terminal state stays consistent
	s.ReadSecret = func(prompt string) ([]byte, error) {
		return rl.ReadPassword(prompt)
	}
	s.ReadLine = func(prompt string) (string, error) {
		rl.SetPrompt(prompt)
		return rl.Readline()
	}

	for {
		rl.SetPrompt(s.prompt())

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					s.println("Use 'quit' or 'exit' to exit")
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				s.println("\nGoodbye!")
				break
			}
			s.printf("Error reading input: %v\n", err)
			continue
		}

		if s.handleLine(line) {
			break
		}
	}
}
