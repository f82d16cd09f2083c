// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import "errors"

var (
	// ErrNoIdentity indicates login was attempted without an identity block in config.
	ErrNoIdentity = errors.New("identity provider not configured")

	// ErrNoSigner indicates an operation that needs the primary signer before one is loaded.
	ErrNoSigner = errors.New("no signer loaded (create one with 'keygen' or set signer_key_file)")

	// ErrBusy indicates a step is in flight.
	ErrBusy = errors.New("a workflow step is running")
)
