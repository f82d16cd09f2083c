// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package walletapi

import (
	"sort"
	"strings"
)

// callIDFields are tried in order when the send-calls result is an object
// without a preparedCallIds list.
var callIDFields = []string{"hash", "txHash", "transactionHash", "id", "callId", "result"}

// minHashLen is the shortest string the last-resort scan treats as a hash.
const minHashLen = 20

// NormalizeCallIDs extracts call identifiers from a decoded send-calls result:
//
//  1. a list is used as is (string elements only);
//  2. a string becomes a one-element list;
//  3. an object yields its preparedCallIds list, else the first present of
//     callIDFields (string wrapped, list used);
//  4. otherwise every 0x-prefixed string value of at least minHashLen
//     characters is collected, in key order.
//
// Anything else yields an empty, non-nil slice. An empty result means the
// submission went through but there is nothing to poll.
func NormalizeCallIDs(v any) []string {
	switch val := v.(type) {
	case []any:
		return stringsOf(val)
	case []string:
		return append([]string{}, val...)
	case string:
		if val == "" {
			return []string{}
		}
		return []string{val}
	case map[string]any:
		return callIDsFromObject(val)
	default:
		return []string{}
	}
}

func callIDsFromObject(obj map[string]any) []string {
	if ids, ok := obj["preparedCallIds"].([]any); ok {
		return stringsOf(ids)
	}

	for _, field := range callIDFields {
		switch val := obj[field].(type) {
		case string:
			if val != "" {
				return []string{val}
			}
		case []any:
			// A list field ends the search even when empty.
			return stringsOf(val)
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ids := []string{}
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && looksLikeHash(s) {
			ids = append(ids, s)
		}
	}
	return ids
}

// sendCallsSource picks the value holding call ids from a send-calls body:
// callIds, else result, else the body itself.
func sendCallsSource(body any) any {
	obj, ok := body.(map[string]any)
	if !ok {
		return body
	}
	if v, ok := obj["callIds"]; ok && v != nil {
		return v
	}
	if v, ok := obj["result"]; ok && v != nil {
		return v
	}
	return obj
}

func looksLikeHash(s string) bool {
	return strings.HasPrefix(s, "0x") && len(s) >= minHashLen
}

func stringsOf(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
