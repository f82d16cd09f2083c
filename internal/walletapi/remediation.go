// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package walletapi

import (
	"fmt"
	"strings"
)

// RemediateSendError rewrites known send-calls failures into instructions the
// user can act on. Unknown messages are returned unchanged.
// account and chainName may be empty.
func RemediateSendError(msg, account, chainName string) string {
	if chainName == "" {
		chainName = "the target chain's"
	}
	target := "the smart account"
	if account != "" {
		target = "the smart account " + account
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "precheck failed") && strings.Contains(lower, "sender balance and deposit together is 0"),
		strings.Contains(lower, "insufficient sender balance"):
		return fmt.Sprintf("You must fund %s (from the provision step) with %s ETH! The account needs ETH to pay for transaction fees.", target, chainName)
	case strings.Contains(lower, "insufficient funds"), strings.Contains(lower, "balance"):
		return fmt.Sprintf("Insufficient balance: Please fund %s with %s ETH to cover transaction fees.", target, chainName)
	default:
		return msg
	}
}
