// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/skflow/skflow/internal/command"
	"github.com/skflow/skflow/internal/scripting"
)

// cmdJS runs one line of JavaScript in the persistent runtime.
func (s *Shell) cmdJS(ctx context.Context, inv command.Invocation) error {
	if inv.RawArgs == "" {
		return fmt.Errorf("usage: js <code>")
	}
	return s.runJS(ctx, inv.RawArgs)
}

// cmdJSFile runs a JavaScript file in the persistent runtime.
func (s *Shell) cmdJSFile(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: jsfile <path>")
	}
	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	return s.runJS(ctx, string(code))
}

func (s *Shell) runJS(ctx context.Context, code string) error {
	result, err := s.jsRunner().Run(ctx, code)
	if err != nil {
		return err
	}
	s.printResult(result)
	return nil
}

// printResult prints a non-empty script result, objects as indented JSON.
func (s *Shell) printResult(result scripting.Result) {
	if result.IsEmpty {
		return
	}
	switch v := result.Value.(type) {
	case map[string]any, []any:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			s.printf("%v\n", v)
			return
		}
		s.println(string(data))
	default:
		s.println(v)
	}
}

// runJSScriptMode runs a JavaScript file (or stdin for "-") and exits.
func runJSScriptMode(ctx context.Context, s *Shell, scriptPath string) error {
	var (
		content []byte
		err     error
	)
	if scriptPath == "-" {
		content, err = io.ReadAll(os.Stdin)
	} else {
		content, err = os.ReadFile(scriptPath)
	}
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	_, err = s.jsRunner().Run(ctx, string(content))
	return err
}

// runJSExpression evaluates one expression and prints its result.
func runJSExpression(ctx context.Context, s *Shell, expr string) error {
	return s.runJS(ctx, expr)
}
