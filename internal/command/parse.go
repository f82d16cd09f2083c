// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package command

import "strings"

// Parse splits a command line into words. Double quotes group words and are
// removed. An empty line yields an Invocation with no Name.
func Parse(input string) Invocation {
	input = strings.TrimSpace(input)
	if input == "" {
		return Invocation{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoted := false

	for i := 0; i < len(input); i++ {
		ch := input[i]

		switch ch {
		case '"':
			inQuotes = !inQuotes
			quoted = true
		case ' ', '\t':
			if inQuotes {
				current.WriteByte(ch)
			} else if current.Len() > 0 || quoted {
				parts = append(parts, current.String())
				current.Reset()
				quoted = false
			}
		default:
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 || quoted {
		parts = append(parts, current.String())
	}

	if len(parts) == 0 {
		return Invocation{}
	}

	inv := Invocation{Name: parts[0], Args: parts[1:]}
	if i := strings.IndexAny(input, " \t"); i >= 0 {
		inv.RawArgs = strings.TrimSpace(input[i:])
	}
	return inv
}
