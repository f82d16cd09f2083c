// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package fsutil provides filesystem helpers for files that hold secrets:
// signer key files, SSH identities and known_hosts.
// Files are owner-only (0600) and their directories 0700.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// PrivateDirPerm is the permission mode for directories holding secrets.
const PrivateDirPerm os.FileMode = 0700

// PrivateFilePerm is the permission mode for secret files.
const PrivateFilePerm os.FileMode = 0600

// MkdirAll creates path and its parents owner-only.
// Unlike os.MkdirAll, this explicitly sets permissions on path after creation
// to bypass umask restrictions.
func MkdirAll(path string) error {
	if err := os.MkdirAll(path, PrivateDirPerm); err != nil {
		return err
	}
	return os.Chmod(path, PrivateDirPerm)
}

// WriteFile writes data owner-only, creating the parent directory if needed.
func WriteFile(path string, data []byte) error {
	if err := MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, PrivateFilePerm); err != nil {
		return err
	}
	return os.Chmod(path, PrivateFilePerm)
}

// CreateFile opens a file owner-only, creating the parent directory if needed.
// Caller is responsible for closing it.
func CreateFile(path string, flag int) (*os.File, error) {
	if err := MkdirAll(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, flag, PrivateFilePerm) // #nosec G304 - callers pass configured paths
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(PrivateFilePerm); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return f, nil
}

// CheckPrivate reports an error if path is readable by group or others.
func CheckPrivate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("%s has permissions %04o, want %04o", path, mode, PrivateFilePerm)
	}
	return nil
}
