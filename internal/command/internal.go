// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package command

import "context"

// ArgsHandler wraps a function that only needs the parsed arguments.
type ArgsHandler func(args []string) error

// Execute implements Handler.
func (h ArgsHandler) Execute(_ context.Context, inv Invocation) error {
	return h(inv.Args)
}

// ContextHandler wraps a function that makes blocking calls bound to ctx.
type ContextHandler func(ctx context.Context, args []string) error

// Execute implements Handler.
func (h ContextHandler) Execute(ctx context.Context, inv Invocation) error {
	return h(ctx, inv.Args)
}
