// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package step provides Hook, the loading/error/result state holder shared by
// every remote workflow step.
package step

import (
	"context"
	"sync"
)

// Func performs one remote round trip for a step.
type Func[P, R any] func(ctx context.Context, params P) (R, error)

// Hook wraps a single remote operation and records the state of its last
// invocation. Invoke clears the previous error and result before calling out,
// so readers never see a stale value next to a fresh loading flag.
type Hook[P, R any] struct {
	name    string
	fn      Func[P, R]
	message func(error) string

	mu        sync.Mutex
	loading   bool
	errMsg    string
	result    R
	hasResult bool
}

// Option configures a Hook.
type Option[P, R any] func(*Hook[P, R])

// WithMessage overrides how a failure is rendered into the recorded error
// message. The error returned from Invoke is not affected.
func WithMessage[P, R any](fn func(error) string) Option[P, R] {
	return func(h *Hook[P, R]) {
		h.message = fn
	}
}

// New creates a Hook named name around fn.
func New[P, R any](name string, fn Func[P, R], opts ...Option[P, R]) *Hook[P, R] {
	h := &Hook[P, R]{
		name:    name,
		fn:      fn,
		message: func(err error) string { return err.Error() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the step name the hook was created with.
func (h *Hook[P, R]) Name() string {
	return h.name
}

// Invoke runs the wrapped operation once. On failure the message is recorded
// and the error is returned unchanged. There is no retry.
func (h *Hook[P, R]) Invoke(ctx context.Context, params P) (R, error) {
	h.mu.Lock()
	var zero R
	h.loading = true
	h.errMsg = ""
	h.result = zero
	h.hasResult = false
	h.mu.Unlock()

	res, err := h.fn(ctx, params)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.loading = false
	if err != nil {
		h.errMsg = h.message(err)
		return zero, err
	}
	h.result = res
	h.hasResult = true
	return res, nil
}

// IsLoading reports whether an invocation is in progress.
func (h *Hook[P, R]) IsLoading() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loading
}

// Error returns the last failure message, or "" if the last invocation succeeded
// or none has completed.
func (h *Hook[P, R]) Error() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errMsg
}

// Result returns the last success value and whether one is present.
func (h *Hook[P, R]) Result() (R, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.hasResult
}

// Reset clears error and result. It has no effect on an in-flight invocation's
// eventual outcome.
func (h *Hook[P, R]) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	var zero R
	h.errMsg = ""
	h.result = zero
	h.hasResult = false
}
