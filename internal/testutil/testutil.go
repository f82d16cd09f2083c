// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package testutil provides reusable test infrastructure and utilities.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Hardhat development account #0. Never fund it on a real chain.
const (
	TestKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	TestAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// WriteHexKey writes TestKeyHex as a plain hex signer key file in dir and
// returns its path.
func WriteHexKey(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "signer.key")
	if err := os.WriteFile(path, []byte(TestKeyHex+"\n"), 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}
	return path
}
