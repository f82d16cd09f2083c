// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package scripting runs JavaScript against the session-key workflow.
// It hides the interpreter behind Runner so the shell does not depend on it.
package scripting

import "context"

// ScriptError is an exception raised by a script.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	return e.Message
}

// Result holds the outcome of running a script.
type Result struct {
	// Value is the exported result value (nil if IsEmpty is true)
	Value any
	// IsEmpty is true if the script returned undefined/null/void
	IsEmpty bool
}

// Runner executes scripts in a persistent runtime, so REPL lines share state.
type Runner interface {
	// Run executes code. Wallet calls made by the script are bound to ctx,
	// and cancelling ctx interrupts the script.
	Run(ctx context.Context, code string) (Result, error)

	// SetOutput sets the function used for print() and log() output.
	SetOutput(fn func(string))

	// Interrupt stops the currently running script.
	// Safe to call from another goroutine.
	Interrupt()
}
