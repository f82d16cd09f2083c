// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package passcmd obtains the signer key passphrase from an external helper
// program instead of a terminal prompt, so skdash and scripts can unlock an
// encrypted key file unattended.
//
// The helper is invoked as
//
//	argv[0] <verb> argv[1] argv[2] ...
//
// where verb is "read" or "write". For "write" the passphrase is piped on
// stdin and the helper must echo back what it stored.
//
// Output contract:
//   - exactly one trailing newline (or CRLF) is stripped
//   - NUL bytes are rejected
//   - "base64:" and "hex:" prefixes are decoded
//   - anything else is taken as raw bytes
package passcmd

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

const (
	// Timeout bounds a single helper invocation.
	Timeout = 5 * time.Second

	// maxOutput caps helper stdout.
	maxOutput = 8 * 1024
)

// Verbs injected as argv[1].
const (
	VerbRead  = "read"
	VerbWrite = "write"
)

// ErrMismatch is returned by Write when the helper echoes a different value.
var ErrMismatch = errors.New("passphrase helper returned a different value")

// Command describes the helper program.
type Command struct {
	Argv []string          // absolute helper path and its arguments
	Env  map[string]string // the only environment the helper sees
}

// Validate checks that argv[0] is an absolute path to an executable that
// cannot be modified by group or others.
func (c Command) Validate() error {
	if len(c.Argv) == 0 {
		return errors.New("passphrase command: argv must be non-empty")
	}
	path := c.Argv[0]
	if !filepath.IsAbs(path) {
		return fmt.Errorf("passphrase command: %q is not an absolute path", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("passphrase command: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("passphrase command: %s is a directory", path)
	}
	perm := info.Mode().Perm()
	if perm&0111 == 0 {
		return fmt.Errorf("passphrase command: %s is not executable (mode %04o)", path, perm)
	}
	if perm&0022 != 0 {
		return fmt.Errorf("passphrase command: %s is writable by group or others (mode %04o)", path, perm)
	}
	return nil
}

// Read runs the helper with the read verb and returns the passphrase.
// The caller should Zero the result after use.
func Read(ctx context.Context, c Command) ([]byte, error) {
	return run(ctx, c, VerbRead, nil)
}

// Write stores passphrase through the helper's write verb and checks the
// echoed value.
func Write(ctx context.Context, c Command, passphrase []byte) error {
	echoed, err := run(ctx, c, VerbWrite, passphrase)
	if err != nil {
		return err
	}
	defer Zero(echoed)
	if subtle.ConstantTimeCompare(echoed, passphrase) != 1 {
		return ErrMismatch
	}
	return nil
}

func run(ctx context.Context, c Command, verb string, stdin []byte) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	args := append([]string{verb}, c.Argv[1:]...)
	cmd := exec.Command(c.Argv[0], args...) // #nosec G204 - helper path validated above
	cmd.Env = environ(c.Env)
	// Own process group so a timeout kills the helper's children too
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout bytes.Buffer
	defer func() {
		Zero(stdout.Bytes())
		stdout.Reset()
	}()
	capped := &cappedWriter{w: &stdout, left: maxOutput}
	cmd.Stdout = capped
	// stderr may carry secrets from a misbehaving helper
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("passphrase command: failed to start: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("passphrase command %s failed: %w", verb, err)
		}
	case <-ctx.Done():
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("passphrase command %s timed out", verb)
		}
		return nil, ctx.Err()
	}

	if capped.overflow {
		return nil, fmt.Errorf("passphrase command: output exceeds %d bytes", maxOutput)
	}
	return decode(stdout.Bytes())
}

// decode applies the output contract to raw helper output. The result is
// always a fresh slice.
func decode(raw []byte) ([]byte, error) {
	out := raw
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
		if n := len(out); n > 0 && out[n-1] == '\r' {
			out = out[:n-1]
		}
	}
	if len(out) == 0 {
		return nil, errors.New("passphrase command: empty output")
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return nil, errors.New("passphrase command: output contains NUL bytes")
	}

	switch {
	case bytes.HasPrefix(out, []byte("base64:")):
		enc := out[len("base64:"):]
		dec := make([]byte, base64.StdEncoding.DecodedLen(len(enc)))
		n, err := base64.StdEncoding.Decode(dec, enc)
		if err != nil {
			Zero(dec)
			return nil, fmt.Errorf("passphrase command: invalid base64 output: %w", err)
		}
		return dec[:n], nil
	case bytes.HasPrefix(out, []byte("hex:")):
		enc := out[len("hex:"):]
		dec := make([]byte, hex.DecodedLen(len(enc)))
		n, err := hex.Decode(dec, enc)
		if err != nil {
			Zero(dec)
			return nil, fmt.Errorf("passphrase command: invalid hex output: %w", err)
		}
		return dec[:n], nil
	}
	return bytes.Clone(out), nil
}

// Zero overwrites b.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}

func environ(vars map[string]string) []string {
	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	return env
}

// cappedWriter keeps at most left bytes and records whether more arrived.
// It always reports a full write so the helper never sees EPIPE.
type cappedWriter struct {
	w        io.Writer
	left     int
	overflow bool
}

func (cw *cappedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > cw.left {
		p = p[:cw.left]
		cw.overflow = true
	}
	if len(p) > 0 {
		if _, err := cw.w.Write(p); err != nil {
			return 0, err
		}
		cw.left -= len(p)
	}
	return n, nil
}
