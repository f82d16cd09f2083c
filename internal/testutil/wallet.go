// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/skflow/skflow/internal/sessionkey"
)

// Values returned by WalletServer.
const (
	Account   = "0x00000000000000000000000000000000000ACC01"
	SessionID = "0x5e55"
	CallID    = "0xca11ca11ca11ca11ca11ca11ca11ca11ca11ca11"
	TxHash    = "0x7777777777777777777777777777777777777777777777777777777777777777"
)

// OpHash is the user operation hash WalletServer asks to be signed.
var OpHash = "0x" + strings.Repeat("ab", 32)

// WalletServer emulates the wallet backend over HTTP. It checks that the
// user operation is signed by the session key it issued and that the
// userOpRequest comes back unaltered.
type WalletServer struct {
	*httptest.Server

	// SendError, if set, is returned by send-prepare-calls with status 400.
	SendError string
	// PendingPolls is how many status polls report the batch as pending.
	PendingPolls int

	t          *testing.T
	mu         sync.Mutex
	requests   []string
	sessionKey string
	lastCall   map[string]any
	polls      int
}

// NewWalletServer starts a WalletServer that is closed with the test.
func NewWalletServer(t *testing.T) *WalletServer {
	t.Helper()
	ws := &WalletServer{t: t}
	ws.Server = httptest.NewServer(ws)
	t.Cleanup(ws.Close)
	return ws
}

// Requests returns the request paths in arrival order.
func (ws *WalletServer) Requests() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]string(nil), ws.requests...)
}

// SessionKey returns the session key address seen on session creation.
func (ws *WalletServer) SessionKey() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.sessionKey
}

// LastCall returns the first call of the latest prepare-calls request.
func (ws *WalletServer) LastCall() map[string]any {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.lastCall
}

func (ws *WalletServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ws.t.Errorf("%s: invalid body: %v", r.URL.Path, err)
	}
	ws.mu.Lock()
	ws.requests = append(ws.requests, r.URL.Path)
	ws.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/wallet/create/smart-account":
		writeJSON(w, http.StatusOK, map[string]any{"accountAddress": Account, "id": "acct-1"})

	case "/api/wallet/create/session-keys":
		addr, _ := body["sessionKeyAddress"].(string)
		ws.mu.Lock()
		ws.sessionKey = addr
		ws.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"result": map[string]any{
				"sessionId":        SessionID,
				"signatureRequest": map[string]any{"type": "personal_sign", "data": map[string]any{"raw": "0xfeed"}},
			},
			"sessionKey": map[string]any{"address": addr},
		})

	case "/api/wallet/prepare-calls":
		ws.mu.Lock()
		if calls, ok := body["calls"].([]any); ok && len(calls) > 0 {
			ws.lastCall, _ = calls[0].(map[string]any)
		}
		ws.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"userOpRequest": map[string]any{
				"sender":        Account,
				"nonce":         "0x0",
				"callData":      "0xb61d27f6",
				"factoryExtras": map[string]any{"v": 7},
			},
			"signatureRequest": map[string]any{"type": "personal_sign", "data": map[string]any{"raw": OpHash}},
			"chainId":          body["chainId"],
		})

	case "/api/wallet/send-prepare-calls":
		if ws.SendError != "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": ws.SendError})
			return
		}
		sig, _ := body["userOpSignature"].(string)
		signer, err := sessionkey.RecoverAddress(OpHash, sig)
		if err != nil || !strings.EqualFold(signer, ws.SessionKey()) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid user operation signature"})
			return
		}
		op, _ := body["userOpRequest"].(map[string]any)
		if _, ok := op["factoryExtras"]; !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "userOpRequest was altered"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"preparedCallIds": []string{CallID}}})

	case "/api/wallet/calls-status":
		if body["callId"] != CallID {
			ws.t.Errorf("polled call id %v", body["callId"])
		}
		ws.mu.Lock()
		ws.polls++
		pending := ws.polls <= ws.PendingPolls
		ws.mu.Unlock()
		if pending {
			writeJSON(w, http.StatusOK, map[string]any{"status": 100, "receipts": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": 200, "receipts": []any{map[string]any{"transactionHash": TxHash}}})

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
