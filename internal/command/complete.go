// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package command

import (
	"strings"

	"github.com/chzyer/readline"
)

// Completer completes command names and, for commands that provide them,
// first-argument candidates.
type Completer struct {
	registry *Registry
}

// NewCompleter creates a readline completer backed by registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Do implements readline.AutoCompleter.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	input := string(line[:pos])
	words := strings.Fields(input)
	trailingSpace := strings.HasSuffix(input, " ")

	switch {
	case len(words) == 0 || (len(words) == 1 && !trailingSpace):
		partial := ""
		if len(words) == 1 {
			partial = words[0]
		}
		return suggestions(filterByPrefix(c.registry.Names(), partial), len(partial)), len(partial)

	case (len(words) == 1 && trailingSpace) || (len(words) == 2 && !trailingSpace):
		cmd, ok := c.registry.Lookup(words[0])
		if !ok || cmd.Complete == nil {
			return nil, 0
		}
		partial := ""
		if len(words) == 2 {
			partial = words[1]
		}
		return suggestions(filterByPrefix(cmd.Complete(), partial), len(partial)), len(partial)
	}
	return nil, 0
}

// suggestions converts candidates to readline suggestions showing only the
// remaining part, with a trailing space.
func suggestions(strs []string, partialLen int) [][]rune {
	out := make([][]rune, 0, len(strs))
	for _, s := range strs {
		if partialLen <= len(s) {
			out = append(out, []rune(s[partialLen:]+" "))
		}
	}
	return out
}

// filterByPrefix returns strings that match the prefix (case-insensitive)
func filterByPrefix(strs []string, prefix string) []string {
	prefixLower := strings.ToLower(prefix)
	var result []string
	for _, s := range strs {
		if strings.HasPrefix(strings.ToLower(s), prefixLower) {
			result = append(result, s)
		}
	}
	return result
}

var _ readline.AutoCompleter = (*Completer)(nil)
