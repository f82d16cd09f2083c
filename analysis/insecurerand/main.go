// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package main implements a static analyzer that detects insecure random number usage.
//
// Packages that create keys, nonces or identity material must use crypto/rand.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Directories that should never use math/rand
var criticalDirs = []string{
	"internal/signer",
	"internal/sessionkey",
	"internal/identity",
	"internal/passcmd",
	"internal/sshtunnel",
	"cmd/skpass-file",
}

var mathRandImport = regexp.MustCompile(`"math/rand(/v2)?"`)

var cryptoRandImport = regexp.MustCompile(`"crypto/rand"`)

// Calls that only exist in math/rand
var mathRandOnlyCalls = regexp.MustCompile(`rand\.(Seed|Intn\(|Int31|Int63|Float|Perm|Shuffle|NewSource|New\(rand\.NewSource)`)

type finding struct {
	file    string
	line    int
	content string
	reason  string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: insecurerand <repo-root>")
		os.Exit(1)
	}
	os.Exit(run(os.Args[1], os.Stdout))
}

func run(root string, w io.Writer) int {
	var findings []finding
	filesChecked := 0

	for _, dir := range criticalDirs {
		dirPath := filepath.Join(root, dir)
		if _, err := os.Stat(dirPath); os.IsNotExist(err) {
			continue
		}
		err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			f, err := os.Open(path) // #nosec G304 - walking the repository
			if err != nil {
				return nil
			}
			defer func() { _ = f.Close() }()
			rel, _ := filepath.Rel(root, path)
			filesChecked++
			findings = append(findings, checkSource(rel, f)...)
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error walking %s: %v\n", dir, err)
		}
	}

	fmt.Fprintf(w, "Insecure Random Analysis\n")
	fmt.Fprintf(w, "========================\n")
	fmt.Fprintf(w, "Files checked: %d\n", filesChecked)
	fmt.Fprintf(w, "Critical directories: %v\n\n", criticalDirs)

	if len(findings) == 0 {
		fmt.Fprintln(w, "No issues found.")
		return 0
	}

	fmt.Fprintf(w, "Potential issues: %d\n\n", len(findings))
	for _, f := range findings {
		fmt.Fprintf(w, "%s:%d\n", f.file, f.line)
		fmt.Fprintf(w, "  Line: %s\n", strings.TrimSpace(f.content))
		fmt.Fprintf(w, "  Issue: %s\n\n", f.reason)
	}
	return 1
}

// checkSource flags a math/rand import, and math/rand-only calls in files
// that do not import crypto/rand (catches aliased imports).
func checkSource(name string, r io.Reader) []finding {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	var findings []finding
	hasCryptoRand := false
	for i, line := range lines {
		if mathRandImport.MatchString(line) {
			findings = append(findings, finding{
				file: name, line: i + 1, content: line,
				reason: "math/rand import in security-critical directory - use crypto/rand instead",
			})
		}
		if cryptoRandImport.MatchString(line) {
			hasCryptoRand = true
		}
	}
	if hasCryptoRand {
		return findings
	}

	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		if mathRandOnlyCalls.MatchString(line) {
			findings = append(findings, finding{
				file: name, line: i + 1, content: line,
				reason: "math/rand function in security-critical code without crypto/rand import",
			})
		}
	}
	return findings
}
