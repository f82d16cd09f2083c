// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package jsapi provides JavaScript API bindings for the session-key workflow.
//
// Functions are organized into files:
//   - api.go: Core API struct, registration, output, status
//   - workflow.go: Step execution, selections, snapshots
//   - helpers.go: Unit and argument conversion
package jsapi

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/skflow/skflow/internal/metrics"
	"github.com/skflow/skflow/internal/workflow"
)

// BalanceFunc returns the ether balance of an address as a decimal string.
type BalanceFunc func(ctx context.Context, address string) (string, error)

// Deps are the services scripts can reach.
type Deps struct {
	Flow    *workflow.Orchestrator
	Balance BalanceFunc
	Metrics *metrics.Metrics
}

// API provides JavaScript bindings for the orchestrator.
type API struct {
	deps    Deps
	ctx     context.Context
	runtime *goja.Runtime
	verbose bool
	output  func(string)
}

// NewAPI creates a new JavaScript API instance.
func NewAPI(deps Deps, verbose bool, output func(string)) *API {
	return &API{
		deps:    deps,
		ctx:     context.Background(),
		verbose: verbose,
		output:  output,
	}
}

// SetContext sets the context used by blocking calls made from scripts.
func (a *API) SetContext(ctx context.Context) {
	a.ctx = ctx
}

// RegisterAll registers all API functions on the given Goja runtime.
func (a *API) RegisterAll(vm *goja.Runtime) error {
	a.runtime = vm

	if err := vm.Set("eth", makeEthFunc(vm)); err != nil {
		return fmt.Errorf("failed to register eth: %w", err)
	}
	if err := vm.Set("wei", makeWeiFunc(vm)); err != nil {
		return fmt.Errorf("failed to register wei: %w", err)
	}

	functions := []struct {
		name string
		fn   func(goja.FunctionCall) goja.Value
	}{
		// Output
		{"print", a.jsPrint},
		{"log", a.jsLog},
		{"setVerbose", a.jsSetVerbose},

		// Status
		{"status", a.jsStatus},
		{"currentStep", a.jsCurrentStep},
		{"canRun", a.jsCanRun},
		{"snapshot", a.jsSnapshot},
		{"metrics", a.jsMetrics},
		{"balance", a.jsBalance},

		// Steps
		{"run", a.jsRun},
		{"signerAddress", a.jsSignerAddress},
		{"provision", a.jsProvision},
		{"createSession", a.jsCreateSession},
		{"authorize", a.jsAuthorize},
		{"prepare", a.jsPrepare},
		{"send", a.jsSend},
		{"runAll", a.jsRunAll},

		// Selections and display
		{"setPermission", a.jsSetPermission},
		{"setSessionTime", a.jsSetSessionTime},
		{"setCall", a.jsSetCall},
		{"toggle", a.jsToggle},
		{"reset", a.jsReset},
	}
	for _, f := range functions {
		if err := vm.Set(f.name, f.fn); err != nil {
			return fmt.Errorf("failed to register %s: %w", f.name, err)
		}
	}
	return nil
}

// output helper for internal use.
func (a *API) outputMsg(msg string) {
	if a.output != nil {
		a.output(msg)
	} else {
		fmt.Println(msg)
	}
}

// throw raises a JS exception with msg.
func (a *API) throw(format string, args ...any) {
	panic(a.runtime.ToValue(fmt.Sprintf(format, args...)))
}

// jsPrint outputs a message to the console.
func (a *API) jsPrint(call goja.FunctionCall) goja.Value {
	args := make([]any, len(call.Arguments))
	for i, arg := range call.Arguments {
		args[i] = arg.Export()
	}
	a.outputMsg(fmt.Sprint(args...))
	return goja.Undefined()
}

// jsLog outputs a debug message (only in verbose mode).
func (a *API) jsLog(call goja.FunctionCall) goja.Value {
	if !a.verbose {
		return goja.Undefined()
	}
	args := make([]any, len(call.Arguments))
	for i, arg := range call.Arguments {
		args[i] = arg.Export()
	}
	a.outputMsg("[debug] " + fmt.Sprint(args...))
	return goja.Undefined()
}

// jsSetVerbose enables or disables log() output.
func (a *API) jsSetVerbose(call goja.FunctionCall) goja.Value {
	a.requireArgs(call, 1, "setVerbose() requires a boolean argument")
	a.verbose = call.Arguments[0].ToBoolean()
	return goja.Undefined()
}

// jsStatus returns a summary of the workflow.
// status() -> { current, running, polling, settings }
func (a *API) jsStatus(call goja.FunctionCall) goja.Value {
	snap := a.deps.Flow.Snapshot()
	return a.runtime.ToValue(map[string]any{
		"current":        int(snap.Current),
		"currentName":    snap.Current.String(),
		"running":        int(snap.Running),
		"polling":        snap.Polling,
		"chainId":        snap.Settings.ChainID,
		"permissionType": snap.Settings.PermissionType,
		"sessionTime":    snap.Settings.SessionTime,
	})
}

// jsMetrics returns the metric summary lines.
func (a *API) jsMetrics(call goja.FunctionCall) goja.Value {
	lines, err := a.deps.Metrics.Summary()
	if err != nil {
		a.throw("metrics() error: %v", err)
	}
	if lines == nil {
		lines = []string{}
	}
	return a.runtime.ToValue(lines)
}

// jsBalance returns the ether balance of an address, defaulting to the smart account.
// balance([address]) -> "0.0100"
func (a *API) jsBalance(call goja.FunctionCall) goja.Value {
	if a.deps.Balance == nil {
		a.throw("balance() is not available (no rpc_url configured)")
	}
	var addr string
	if len(call.Arguments) > 0 {
		addr = call.Arguments[0].String()
	} else if acct := a.deps.Flow.Snapshot().Account; acct != nil {
		addr = acct.AccountAddress
	} else {
		a.throw("balance() requires an address before an account is provisioned")
	}
	bal, err := a.deps.Balance(a.ctx, addr)
	if err != nil {
		a.throw("balance() error: %v", err)
	}
	return a.runtime.ToValue(bal)
}
