// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package command

import "context"

// Command represents a REPL command with metadata
type Command struct {
	Name        string   // Primary command name
	Aliases     []string // Alternative names (e.g., "h" for "help")
	Usage       string   // Usage string: "session [permission] [duration]"
	Description string   // One-line description
	LongHelp    string   // Multi-line detailed help (optional)
	Category    string   // "Workflow", "Keys", etc.
	Handler     Handler  // Command execution handler

	// Complete lists candidates for the first argument (optional).
	Complete func() []string
}

// Invocation is one parsed command line.
type Invocation struct {
	Name string
	Args []string

	// RawArgs is everything after the command name with quotes intact.
	// Used by commands like 'js' that pass their input through.
	RawArgs string
}

// Handler runs a command.
type Handler interface {
	Execute(ctx context.Context, inv Invocation) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv Invocation) error

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, inv Invocation) error {
	return f(ctx, inv)
}

// Category constants for organizing commands
const (
	CategoryWorkflow   = "Workflow"
	CategorySelection  = "Session Settings"
	CategoryInfo       = "Information"
	CategoryKeys       = "Key Management"
	CategoryIdentity   = "Identity"
	CategoryConfig     = "Configuration"
	CategoryAutomation = "Automation"
)

// categoryOrder is the order categories appear in help.
var categoryOrder = []string{
	CategoryWorkflow,
	CategorySelection,
	CategoryInfo,
	CategoryKeys,
	CategoryIdentity,
	CategoryConfig,
	CategoryAutomation,
}
