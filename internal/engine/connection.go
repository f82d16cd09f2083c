// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"context"
	"fmt"
)

// UsesTunnel reports whether wallet API traffic goes through an SSH bastion.
func (e *Engine) UsesTunnel() bool {
	return e.tunnel != nil
}

// ConnectTunnel establishes the bastion connection ahead of the first request.
// It is a no-op for direct connections.
func (e *Engine) ConnectTunnel(ctx context.Context) error {
	if e.tunnel == nil {
		return nil
	}
	if err := e.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("ssh bastion %s: %w", e.tunnel.Addr(), err)
	}
	return nil
}

// ConnectionStatus describes how the wallet API is reached.
func (e *Engine) ConnectionStatus() string {
	base := e.Client.BaseURL()
	if e.tunnel == nil {
		return base + " (direct)"
	}
	state := "idle"
	if e.tunnel.IsConnected() {
		state = "connected"
		if err := e.tunnel.CheckConnection(); err != nil {
			state = "stale"
		}
	}
	return fmt.Sprintf("%s via ssh %s (%s)", base, e.tunnel.Addr(), state)
}
