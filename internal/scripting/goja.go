// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package scripting

import (
	"context"
	"errors"

	"github.com/dop251/goja"

	"github.com/skflow/skflow/internal/jsapi"
)

// GojaRunner implements Runner using the Goja JavaScript interpreter.
type GojaRunner struct {
	vm     *goja.Runtime
	api    *jsapi.API
	output func(string)
}

// NewGojaRunner creates a runner with the workflow API registered.
func NewGojaRunner(deps jsapi.Deps) *GojaRunner {
	r := &GojaRunner{
		output: func(s string) {}, // Default: discard output
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	// Wrap output so SetOutput works after creation
	api := jsapi.NewAPI(deps, false, func(msg string) {
		r.output(msg)
	})
	if err := api.RegisterAll(vm); err != nil {
		// Registration errors are programming bugs, not runtime errors
		panic("failed to register JS API: " + err.Error())
	}

	r.vm = vm
	r.api = api
	return r
}

// Run executes JavaScript code and returns the result.
func (r *GojaRunner) Run(ctx context.Context, code string) (Result, error) {
	r.api.SetContext(ctx)
	defer r.api.SetContext(context.Background())

	stop := context.AfterFunc(ctx, r.Interrupt)
	defer func() {
		if !stop() {
			// Interrupted: clear the flag so the next Run is not aborted.
			r.vm.ClearInterrupt()
		}
	}()

	result, err := r.vm.RunString(code)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		var jsErr *goja.Exception
		if errors.As(err, &jsErr) {
			// String() keeps the message readable; Export() of an Error object is a map
			return Result{}, &ScriptError{Message: jsErr.String()}
		}
		return Result{}, err
	}

	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return Result{IsEmpty: true}, nil
	}
	return Result{Value: result.Export()}, nil
}

// SetOutput sets the function used for print() and log() output.
func (r *GojaRunner) SetOutput(fn func(string)) {
	if fn == nil {
		r.output = func(s string) {}
	} else {
		r.output = fn
	}
}

// Interrupt stops the currently running script.
// Safe to call from another goroutine (e.g., for timeout enforcement).
func (r *GojaRunner) Interrupt() {
	r.vm.Interrupt("script interrupted")
}

var _ Runner = (*GojaRunner)(nil)
