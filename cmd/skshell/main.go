// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Command skshell is an interactive shell for the session-key workflow.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/skflow/skflow/internal/engine"
	"github.com/skflow/skflow/internal/security"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/version"
)

func main() {
	// Define all flags upfront before parsing
	printVersion := flag.Bool("version", false, "Print version and exit")
	dataDir := flag.String("d", "", "Data directory (default: ~/.skflow or SKFLOW_DATA)")
	jsScript := flag.String("js", "", "Execute JavaScript script file (use '-' for stdin)")
	jsExpr := flag.String("e", "", "Execute JavaScript expression")
	showConfig := flag.Bool("config", false, "Print the configuration and exit")
	flag.Parse()

	if *printVersion {
		fmt.Printf("skshell %s\n", version.String())
		os.Exit(0)
	}

	// Resolve data directory: -d flag > SKFLOW_DATA env var > ~/.skflow
	resolvedDataDir := util.RequireDataDir(*dataDir)
	if *showConfig {
		util.DisplayConfig(resolvedDataDir)
		os.Exit(0)
	}

	// Initialize logger (supports SKFLOW_DEBUG environment variable)
	util.InitLoggerTo(os.Stderr)

	config, err := util.LoadConfig(resolvedDataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	for _, err := range security.Harden(config.LockMemory) {
		util.Logger.Warn("process hardening incomplete", "error", err)
	}

	eng, err := engine.New(config, resolvedDataDir,
		engine.WithPassphrase(func(path string) ([]byte, error) {
			return readSecret(fmt.Sprintf("Passphrase for %s: ", path))
		}),
		engine.WithHostKeyApproval(approveHostKey),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = eng.Close() }()

	shell := NewShell(eng, os.Stdout)

	// Script modes stop on Ctrl+C; the REPL handles it per command
	switch {
	case *jsExpr != "":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err = runJSExpression(ctx, shell, *jsExpr)
		stop()
	case *jsScript != "":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err = runJSScriptMode(ctx, shell, *jsScript)
		stop()
	default:
		ctx, cancel := context.WithCancel(context.Background())
		shell.startREPL(ctx)
		cancel()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		_ = eng.Close()
		os.Exit(1)
	}
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
