// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package main implements a static analyzer that detects secrets in logs or errors.
//
// It scans non-test Go files for log calls and format strings that might
// print signer keys, session keys, passphrases, or identity tokens.
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

// Format verbs next to a secret-looking identifier.
var formatPatterns = []*regexp.Regexp{
	regexp.MustCompile(`%[xvs].*[,(]\s*(\w+\.)?(?i)(privatekey|privkey|secretkey|passphrase|clientsecret)\b`),
	regexp.MustCompile(`%[xvs].*[,(]\s*(?i)(pass|token|accesstoken)\)`),
	regexp.MustCompile(`%[xvs].*\.(PrivateKey|ClientSecret|AccessToken)\b`),
}

// slog attributes whose key names a secret.
var attrPattern = regexp.MustCompile(`(Logger\.\w+|util\.Debug)\(.*"(?i)(private_?key|priv_?key|passphrase|pass|token|access_?token|client_?secret|secret)"\s*,`)

// Direct printing of a secret variable.
var directPattern = regexp.MustCompile(`fmt\.(Print|Println)\((?i)(privatekey|privkey|passphrase|token)\)`)

// Files that show secrets to the user on purpose.
var exemptFiles = map[string]string{
	"cmd/skpass-file/main.go": "passphrase helper prints the passphrase to its caller by protocol",
}

type finding struct {
	file    string
	line    int
	content string
	reason  string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: keylog <repo-root>")
		os.Exit(1)
	}
	os.Exit(run(os.Args[1], os.Stdout))
}

func run(root string, w io.Writer) int {
	var findings []finding
	filesChecked := 0

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			switch filepath.Base(path) {
			case "vendor", ".git", "analysis", "_examples", "testdata":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if _, ok := exemptFiles[filepath.ToSlash(rel)]; ok {
			return nil
		}

		f, err := os.Open(path) // #nosec G304 - walking the repository
		if err != nil {
			return nil
		}
		defer func() { _ = f.Close() }()
		filesChecked++
		findings = append(findings, checkSource(rel, f)...)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error walking directory: %v\n", err)
		return 2
	}

	fmt.Fprintf(w, "Key Logging Analysis\n")
	fmt.Fprintf(w, "====================\n")
	fmt.Fprintf(w, "Files checked: %d\n\n", filesChecked)

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

// checkSource scans one file line by line.
func checkSource(name string, r io.Reader) []finding {
	var findings []finding
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}

		reason := ""
		switch {
		case directPattern.MatchString(line):
			reason = "Direct printing of secret variable"
		case attrPattern.MatchString(line):
			reason = "Log attribute named like a secret"
		default:
			for _, pat := range formatPatterns {
				if pat.MatchString(line) {
					reason = "Potential secret in formatted output"
					break
				}
			}
		}
		if reason != "" {
			findings = append(findings, finding{file: name, line: lineNum, content: line, reason: reason})
		}
	}
	return findings
}
