// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

// ShortHex abbreviates a hex string to its first 6 and last 4 characters,
// e.g. 0x4Ff8...a501. Strings of 12 characters or fewer are returned unchanged.
func ShortHex(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}
