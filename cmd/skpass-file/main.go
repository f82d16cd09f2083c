// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// skpass-file is a passphrase helper that keeps the signer key passphrase in
// an owner-only plaintext file:
//
//	skpass-file read  <file>   prints the stored passphrase
//	skpass-file write <file>   stores stdin, then echoes it back
//
// Plaintext storage is meant for development and CI only.
//
// Usage in config.yaml:
//
//	passphrase_command_argv: ["/usr/local/bin/skpass-file", "/home/me/.skflow/passphrase"]
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/skflow/skflow/internal/fsutil"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: skpass-file <read|write> <passphrase-file>")
		return 2
	}
	verb, path := args[0], args[1]

	switch verb {
	case "read":
		if err := fsutil.CheckPrivate(path); err != nil {
			fmt.Fprintf(stderr, "skpass-file: %v\n", err)
			return 1
		}
		data, err := os.ReadFile(path) // #nosec G304 - path is the helper's argument
		if err != nil {
			fmt.Fprintf(stderr, "skpass-file: %v\n", err)
			return 1
		}
		_, _ = stdout.Write(data)

	case "write":
		passphrase, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "skpass-file: read stdin: %v\n", err)
			return 1
		}
		if err := fsutil.WriteFile(path, passphrase); err != nil {
			fmt.Fprintf(stderr, "skpass-file: %v\n", err)
			return 1
		}
		_, _ = stdout.Write(passphrase)

	default:
		fmt.Fprintf(stderr, "skpass-file: unknown verb %q (expected read or write)\n", verb)
		return 2
	}
	return 0
}
