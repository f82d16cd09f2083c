// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package security hardens a process that keeps signer and session keys in
// memory.
package security

import (
	"fmt"
	"os"
	"syscall"
)

// LockMemory locks all current and future pages so keys are never swapped
// to disk. It needs CAP_IPC_LOCK or a large enough RLIMIT_MEMLOCK.
func LockMemory() error {
	if err := syscall.Mlockall(syscall.MCL_CURRENT | syscall.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall failed: %w (grant it with: sudo setcap cap_ipc_lock+ep %s)", err, os.Args[0])
	}
	return nil
}

// DisableCoreDumps sets RLIMIT_CORE to zero so a crash cannot write keys to
// a core file.
func DisableCoreDumps() error {
	limit := syscall.Rlimit{Cur: 0, Max: 0}
	if err := syscall.Setrlimit(syscall.RLIMIT_CORE, &limit); err != nil {
		return fmt.Errorf("failed to disable core dumps: %w", err)
	}
	return nil
}

// Harden disables core dumps and, if lockMemory is set, locks memory. Every
// failure is returned; none is fatal to the caller.
func Harden(lockMemory bool) []error {
	var errs []error
	if err := DisableCoreDumps(); err != nil {
		errs = append(errs, err)
	}
	if lockMemory {
		if err := LockMemory(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
