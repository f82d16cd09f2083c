// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/skflow/skflow/internal/command"
	"github.com/skflow/skflow/internal/passcmd"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/walletapi"
	"github.com/skflow/skflow/internal/workflow"
)

func stepNames() []string {
	names := make([]string, 0, len(workflow.Steps))
	for _, s := range workflow.Steps {
		names = append(names, s.String())
	}
	return names
}

// initCommandRegistry registers every shell command.
func (s *Shell) initCommandRegistry() *command.Registry {
	registry := command.NewRegistry()

	// Workflow
	registry.MustRegister(&command.Command{
		Name:        "address",
		Usage:       "address",
		Description: "Step 1: read the signer address",
		Category:    command.CategoryWorkflow,
		Handler:     s.stepHandler(workflow.StepSignerAddress),
	})
	registry.MustRegister(&command.Command{
		Name:        "account",
		Usage:       "account",
		Description: "Step 2: provision the smart account",
		Category:    command.CategoryWorkflow,
		Handler:     s.stepHandler(workflow.StepProvisionAccount),
	})
	registry.MustRegister(&command.Command{
		Name:        "session",
		Usage:       "session [permission] [duration]",
		Description: "Step 3: create a session for a fresh session key",
		LongHelp:    "Optional arguments change the selections first.\nPermissions: " + strings.Join(util.PermissionTypes(), ", ") + "\nDurations: " + strings.Join(util.SessionTimes(), ", "),
		Category:    command.CategoryWorkflow,
		Handler:     command.ContextHandler(s.cmdSession),
		Complete:    util.PermissionTypes,
	})
	registry.MustRegister(&command.Command{
		Name:        "authorize",
		Aliases:     []string{"auth"},
		Usage:       "authorize",
		Description: "Step 4: sign the session with the signer",
		Category:    command.CategoryWorkflow,
		Handler:     s.stepHandler(workflow.StepAuthorizeSession),
	})
	registry.MustRegister(&command.Command{
		Name:        "prepare",
		Usage:       "prepare [to] [value] [data]",
		Description: "Step 5: build the user operation",
		LongHelp:    "Optional arguments replace the call first. value is wei (decimal or 0x hex) or ether with an 'eth' suffix, e.g. 0.01eth.",
		Category:    command.CategoryWorkflow,
		Handler:     command.ContextHandler(s.cmdPrepare),
	})
	registry.MustRegister(&command.Command{
		Name:        "send",
		Usage:       "send",
		Description: "Step 6: sign with the session key, relay and wait for the transaction hash",
		Category:    command.CategoryWorkflow,
		Handler:     s.stepHandler(workflow.StepSignAndSend),
	})
	registry.MustRegister(&command.Command{
		Name:        "run",
		Usage:       "run <step|all>",
		Description: "Run a step by number or name, or every remaining step",
		Category:    command.CategoryWorkflow,
		Handler:     command.ContextHandler(s.cmdRun),
		Complete:    func() []string { return append(stepNames(), "all") },
	})
	registry.MustRegister(&command.Command{
		Name:        "reset",
		Usage:       "reset",
		Description: "Discard all step outputs and start over",
		Category:    command.CategoryWorkflow,
		Handler:     command.ArgsHandler(s.cmdReset),
	})

	// Selections
	registry.MustRegister(&command.Command{
		Name:        "perm",
		Usage:       "perm <permission>",
		Description: "Select the session permission type",
		Category:    command.CategorySelection,
		Handler:     command.ArgsHandler(s.cmdPerm),
		Complete:    util.PermissionTypes,
	})
	registry.MustRegister(&command.Command{
		Name:        "duration",
		Usage:       "duration <5min|1hour|1day>",
		Description: "Select the session duration",
		Category:    command.CategorySelection,
		Handler:     command.ArgsHandler(s.cmdDuration),
		Complete:    util.SessionTimes,
	})
	registry.MustRegister(&command.Command{
		Name:        "call",
		Usage:       "call [<to> [value] [data]]",
		Description: "Show or replace the call to prepare",
		Category:    command.CategorySelection,
		Handler:     command.ArgsHandler(s.cmdCall),
	})

	// Information
	registry.MustRegister(&command.Command{
		Name:        "status",
		Aliases:     []string{"st"},
		Usage:       "status",
		Description: "Show every step and its output",
		Category:    command.CategoryInfo,
		Handler:     command.ArgsHandler(s.cmdStatus),
	})
	registry.MustRegister(&command.Command{
		Name:        "toggle",
		Usage:       "toggle <step>",
		Description: "Collapse or expand a completed step in status",
		Category:    command.CategoryInfo,
		Handler:     command.ArgsHandler(s.cmdToggle),
		Complete:    stepNames,
	})
	registry.MustRegister(&command.Command{
		Name:        "balance",
		Aliases:     []string{"bal"},
		Usage:       "balance [address]",
		Description: "Show the ether balance of the smart account or an address",
		Category:    command.CategoryInfo,
		Handler:     command.ContextHandler(s.cmdBalance),
	})
	registry.MustRegister(&command.Command{
		Name:        "metrics",
		Usage:       "metrics",
		Description: "Show request, step and polling counters",
		Category:    command.CategoryInfo,
		Handler:     command.ArgsHandler(s.cmdMetrics),
	})
	registry.MustRegister(&command.Command{
		Name:        "connection",
		Aliases:     []string{"conn"},
		Usage:       "connection",
		Description: "Show how the wallet API is reached",
		Category:    command.CategoryInfo,
		Handler:     command.ContextHandler(s.cmdConnection),
	})

	// Keys
	registry.MustRegister(&command.Command{
		Name:        "keygen",
		Usage:       "keygen [light]",
		Description: "Create an encrypted signer key at signer_key_file",
		LongHelp:    "'light' uses weaker scrypt parameters, for testing only.",
		Category:    command.CategoryKeys,
		Handler:     command.ArgsHandler(s.cmdKeygen),
	})
	registry.MustRegister(&command.Command{
		Name:        "loadkey",
		Usage:       "loadkey",
		Description: "Reload the signer key from signer_key_file",
		Category:    command.CategoryKeys,
		Handler:     command.ArgsHandler(s.cmdLoadKey),
	})

	// Identity
	registry.MustRegister(&command.Command{
		Name:        "login",
		Usage:       "login [username]",
		Description: "Log in to the identity provider; the token is sent to the wallet API",
		Category:    command.CategoryIdentity,
		Handler:     command.ContextHandler(s.cmdLogin),
	})
	registry.MustRegister(&command.Command{
		Name:        "logout",
		Usage:       "logout",
		Description: "Forget the identity token",
		Category:    command.CategoryIdentity,
		Handler:     command.ArgsHandler(s.cmdLogout),
	})
	registry.MustRegister(&command.Command{
		Name:        "whoami",
		Usage:       "whoami",
		Description: "Show the logged-in identity",
		Category:    command.CategoryIdentity,
		Handler:     command.ArgsHandler(s.cmdWhoami),
	})

	// Configuration
	registry.MustRegister(&command.Command{
		Name:        "config",
		Usage:       "config",
		Description: "Show the configuration",
		Category:    command.CategoryConfig,
		Handler:     command.ArgsHandler(s.cmdConfig),
	})

	// Automation
	registry.MustRegister(&command.Command{
		Name:        "js",
		Usage:       "js <code>",
		Description: "Run JavaScript against the workflow (state persists between lines)",
		Category:    command.CategoryAutomation,
		Handler:     command.HandlerFunc(s.cmdJS),
	})
	registry.MustRegister(&command.Command{
		Name:        "jsfile",
		Usage:       "jsfile <path>",
		Description: "Run a JavaScript file",
		Category:    command.CategoryAutomation,
		Handler:     command.ContextHandler(s.cmdJSFile),
	})
	registry.MustRegister(&command.Command{
		Name:        "help",
		Aliases:     []string{"h", "?"},
		Usage:       "help [command]",
		Description: "Show help",
		Category:    command.CategoryConfig,
		Handler:     command.ArgsHandler(s.cmdHelp),
	})
	registry.MustRegister(&command.Command{
		Name:        "quit",
		Aliases:     []string{"exit", "q"},
		Usage:       "quit",
		Description: "Exit the shell",
		Category:    command.CategoryConfig,
		Handler:     command.ArgsHandler(func([]string) error { return command.ErrExit }),
	})

	return registry
}

// stepHandler returns a handler that runs n and shows its output.
func (s *Shell) stepHandler(n workflow.Step) command.Handler {
	return command.ContextHandler(func(ctx context.Context, _ []string) error {
		return s.runStep(ctx, n)
	})
}

// runStep runs n, explaining a refusal and printing the step's output.
func (s *Shell) runStep(ctx context.Context, n workflow.Step) error {
	flow := s.Engine.Flow
	ran, err := flow.Run(ctx, n)
	if !ran {
		return s.refusal(n)
	}

	snap := flow.Snapshot()
	if err != nil {
		// sign-and-send stays completed when only polling failed
		if n == workflow.StepSignAndSend && flow.IsCompleted(n) {
			for _, line := range snap.Details(n) {
				s.printf("  %s\n", line)
			}
		}
		return err
	}

	s.printf("%s %s\n", util.Colorize("✓", util.ColorGreen), n)
	for _, line := range snap.Details(n) {
		s.printf("  %s\n", line)
	}
	return nil
}

// refusal explains why n did not run.
func (s *Shell) refusal(n workflow.Step) error {
	flow := s.Engine.Flow
	switch {
	case flow.IsRunning():
		return fmt.Errorf("cannot run %s: another step is running", n)
	case n == workflow.StepSignerAddress && s.Engine.Signer() == nil:
		return fmt.Errorf("cannot run %s: no signer loaded (use 'keygen' or 'loadkey')", n)
	case n > flow.CurrentStep():
		return fmt.Errorf("cannot run %s yet: complete %s first", n, flow.CurrentStep())
	case n == workflow.StepSignAndSend && flow.IsCompleted(n):
		return fmt.Errorf("cannot run %s: already submitted (run 'prepare' to build a new call)", n)
	}
	return fmt.Errorf("cannot run %s with the current selections", n)
}

func (s *Shell) cmdSession(ctx context.Context, args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("usage: session [permission] [duration]")
	}
	if len(args) > 0 {
		if err := s.Engine.Flow.SetPermissionType(args[0]); err != nil {
			return err
		}
	}
	if len(args) > 1 {
		if err := s.Engine.Flow.SetSessionTime(args[1]); err != nil {
			return err
		}
	}
	return s.runStep(ctx, workflow.StepCreateSession)
}

func (s *Shell) cmdPrepare(ctx context.Context, args []string) error {
	if len(args) > 0 {
		if err := s.cmdCall(args); err != nil {
			return err
		}
	}
	return s.runStep(ctx, workflow.StepPrepareCalls)
}

func (s *Shell) cmdRun(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: run <step|all>")
	}
	if args[0] != "all" {
		n, err := workflow.ParseStep(args[0])
		if err != nil {
			return err
		}
		return s.runStep(ctx, n)
	}
	for s.Engine.Flow.CurrentStep() != workflow.Done {
		if err := s.runStep(ctx, s.Engine.Flow.CurrentStep()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shell) cmdReset(_ []string) error {
	if !s.Engine.Flow.Reset() {
		return fmt.Errorf("cannot reset while a step is running")
	}
	s.println("Workflow reset")
	return nil
}

func (s *Shell) cmdPerm(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: perm <%s>", strings.Join(util.PermissionTypes(), "|"))
	}
	if err := s.Engine.Flow.SetPermissionType(args[0]); err != nil {
		return err
	}
	s.printf("Permission type: %s\n", args[0])
	return nil
}

func (s *Shell) cmdDuration(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: duration <%s>", strings.Join(util.SessionTimes(), "|"))
	}
	if err := s.Engine.Flow.SetSessionTime(args[0]); err != nil {
		return err
	}
	s.printf("Session duration: %s\n", args[0])
	return nil
}

func (s *Shell) cmdCall(args []string) error {
	flow := s.Engine.Flow
	if len(args) == 0 {
		c := flow.Settings().Call
		s.printf("to=%s value=%s data=%s\n", c.To, c.Value, c.Data)
		return nil
	}
	if len(args) > 3 {
		return fmt.Errorf("usage: call <to> [value] [data]")
	}
	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("invalid address %q", args[0])
	}

	c := walletapi.Call{To: args[0], Value: "0x0", Data: "0x"}
	if len(args) > 1 {
		v, err := parseValue(args[1])
		if err != nil {
			return err
		}
		c.Value = v
	}
	if len(args) > 2 {
		if _, err := hexutil.Decode(args[2]); err != nil {
			return fmt.Errorf("invalid call data: %w", err)
		}
		c.Data = args[2]
	}
	flow.SetCall(c)
	s.printf("Call: to=%s value=%s data=%s\n", c.To, c.Value, c.Data)
	return nil
}

// parseValue converts decimal wei, 0x hex wei, or "<ether>eth" to hex wei.
func parseValue(v string) (string, error) {
	if amount, ok := strings.CutSuffix(strings.ToLower(v), "eth"); ok {
		r, ok := new(big.Rat).SetString(amount)
		if !ok || r.Sign() < 0 {
			return "", fmt.Errorf("invalid ether amount %q", v)
		}
		r.Mul(r, new(big.Rat).SetInt(big.NewInt(1_000_000_000_000_000_000)))
		return hexutil.EncodeBig(new(big.Int).Quo(r.Num(), r.Denom())), nil
	}
	if strings.HasPrefix(v, "0x") {
		n, err := hexutil.DecodeBig(v)
		if err != nil {
			return "", fmt.Errorf("invalid value %q: %w", v, err)
		}
		return hexutil.EncodeBig(n), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("invalid value %q", v)
	}
	return hexutil.EncodeBig(n), nil
}

func (s *Shell) cmdStatus(_ []string) error {
	s.renderStatus(s.Engine.Flow.Snapshot())
	return nil
}

func (s *Shell) cmdToggle(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: toggle <step>")
	}
	n, err := workflow.ParseStep(args[0])
	if err != nil {
		return err
	}
	if !s.Engine.Flow.ToggleCollapse(n) {
		return fmt.Errorf("%s is not completed", n)
	}
	state := "expanded"
	if s.Engine.Flow.IsCollapsed(n) {
		state = "collapsed"
	}
	s.printf("%s %s\n", n, state)
	return nil
}

func (s *Shell) cmdBalance(ctx context.Context, args []string) error {
	var addr string
	switch {
	case len(args) == 1:
		addr = args[0]
	case len(args) > 1:
		return fmt.Errorf("usage: balance [address]")
	default:
		acct := s.Engine.Flow.Snapshot().Account
		if acct == nil {
			return fmt.Errorf("no smart account yet: run 'account' or give an address")
		}
		addr = acct.AccountAddress
	}
	bal, err := s.Engine.Balance(ctx, addr)
	if err != nil {
		return err
	}
	s.printf("%s: %s ETH\n", addr, bal)
	return nil
}

func (s *Shell) cmdMetrics(_ []string) error {
	lines, err := s.Engine.Metrics.Summary()
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		s.println("No activity yet")
	}
	for _, line := range lines {
		s.println(line)
	}
	return nil
}

func (s *Shell) cmdConnection(ctx context.Context, args []string) error {
	if len(args) == 1 && args[0] == "connect" {
		if err := s.Engine.ConnectTunnel(ctx); err != nil {
			return err
		}
	}
	s.println(s.Engine.ConnectionStatus())
	return nil
}

func (s *Shell) cmdKeygen(args []string) error {
	light := len(args) == 1 && args[0] == "light"
	pass, err := s.ReadSecret("New passphrase: ")
	if err != nil {
		return err
	}
	defer passcmd.Zero(pass)
	confirm, err := s.ReadSecret("Confirm passphrase: ")
	if err != nil {
		return err
	}
	defer passcmd.Zero(confirm)
	if !bytes.Equal(pass, confirm) {
		return fmt.Errorf("passphrases do not match")
	}
	addr, err := s.Engine.GenerateSigner(pass, light)
	if addr != "" {
		s.printf("Created signer %s at %s\n", addr, s.Engine.Config().SignerKeyFile)
	}
	return err
}

func (s *Shell) cmdLoadKey(_ []string) error {
	if err := s.Engine.LoadSigner(); err != nil {
		return err
	}
	addr, err := s.Engine.Signer().Address(context.Background())
	if err != nil {
		return err
	}
	s.printf("Loaded signer %s\n", addr)
	return nil
}

func (s *Shell) cmdLogin(ctx context.Context, args []string) error {
	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		u, err := s.ReadLine("Username: ")
		if err != nil {
			return err
		}
		username = u
	}
	password, err := s.ReadSecret("Password: ")
	if err != nil {
		return err
	}
	claims, err := s.Engine.Login(ctx, username, string(password))
	if err != nil {
		return err
	}
	if claims.Subject != "" {
		s.printf("Logged in as %s\n", claims.Subject)
	} else {
		s.println("Logged in")
	}
	return nil
}

func (s *Shell) cmdLogout(_ []string) error {
	s.Engine.Logout()
	s.println("Logged out")
	return nil
}

func (s *Shell) cmdWhoami(_ []string) error {
	claims := s.Engine.Claims()
	if claims == nil {
		s.println("Not logged in")
		return nil
	}
	subject := claims.Subject
	if subject == "" {
		subject = "(opaque token)"
	}
	s.printf("Subject: %s\n", subject)
	if claims.Issuer != "" {
		s.printf("Issuer:  %s\n", claims.Issuer)
	}
	if !claims.ExpiresAt.IsZero() {
		expired := ""
		if claims.Expired(time.Now()) {
			expired = " (expired, use 'login' again)"
		}
		s.printf("Expires: %s%s\n", claims.ExpiresAt.Format("2006-01-02 15:04:05"), expired)
	}
	return nil
}

func (s *Shell) cmdConfig(_ []string) error {
	util.DisplayConfig(s.Engine.DataDir)
	return nil
}

func (s *Shell) cmdHelp(args []string) error {
	if len(args) == 1 {
		cmd, ok := s.Registry.Lookup(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", command.ErrUnknownCommand, args[0])
		}
		command.ShowCommandHelp(s.out, cmd)
		return nil
	}
	cfg := s.Engine.Config()
	command.ShowHelp(s.out, s.Registry, fmt.Sprintf("Chain: %s (%s)", cfg.ChainName(), cfg.ChainID))
	return nil
}

// isExit reports whether err ends the session.
func isExit(err error) bool {
	return errors.Is(err, command.ErrExit)
}
