// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Command skdash is a terminal dashboard for the session-key workflow.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/skflow/skflow/cmd/skdash/internal/tui"
	"github.com/skflow/skflow/internal/engine"
	"github.com/skflow/skflow/internal/security"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/version"
	"github.com/skflow/skflow/internal/workflow"
)

func main() {
	printVersion := flag.Bool("version", false, "Print version and exit")
	dataDir := flag.String("d", "", "Data directory (default: ~/.skflow or SKFLOW_DATA)")
	flag.Parse()

	if *printVersion {
		fmt.Printf("skdash %s\n", version.String())
		os.Exit(0)
	}

	resolvedDataDir := util.RequireDataDir(*dataDir)

	// The TUI owns the terminal, so logs go to a file
	if err := os.MkdirAll(resolvedDataDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	logPath := filepath.Join(resolvedDataDir, "skdash.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 - path is under the data directory
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logFile.Close() }()
	util.InitLoggerTo(logFile)

	config, err := util.LoadConfig(resolvedDataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	for _, err := range security.Harden(config.LockMemory) {
		util.Logger.Warn("process hardening incomplete", "error", err)
	}

	bridge := tui.NewBridge()
	eng, err := engine.New(config, resolvedDataDir,
		engine.WithPassphrase(func(path string) ([]byte, error) {
			return readSecret(fmt.Sprintf("Passphrase for %s: ", path))
		}),
		engine.WithHostKeyApproval(approveHostKey),
		engine.WithWorkflowOptions(workflow.WithListener(bridge.Listener())),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(eng, bridge); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		_ = eng.Close()
		os.Exit(1)
	}
	_ = eng.Close()
}

func run(eng *engine.Engine, bridge *tui.Bridge) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Host key prompts need the plain terminal, so connect before the TUI starts
	if eng.UsesTunnel() {
		fmt.Printf("Connecting to %s...\n", eng.ConnectionStatus())
		if err := eng.ConnectTunnel(ctx); err != nil {
			return err
		}
	}

	err := eng.WatchConfig(ctx, func(restartNeeded bool, err error) {
		switch {
		case err != nil:
			util.Logger.Warn("config reload failed", "error", err)
		case restartNeeded:
			util.Logger.Warn("config changed; restart skdash to apply connection settings")
		default:
			util.Logger.Info("config reloaded")
		}
	})
	if err != nil {
		util.Logger.Warn("config watcher disabled", "error", err)
	}

	p := tea.NewProgram(tui.NewModel(ctx, eng.Flow, bridge), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

func readSecret(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) // #nosec G115 - file descriptors are small integers
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return b, nil
}

// approveHostKey asks whether to trust an unknown bastion host key.
func approveHostKey(host, fingerprint string) (bool, error) {
	fmt.Printf("The authenticity of host '%s' can't be established.\n", host)
	fmt.Printf("Key fingerprint is %s.\n", fingerprint)
	fmt.Print("Trust this host and remember it? (yes/no): ")
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes"), nil
}
