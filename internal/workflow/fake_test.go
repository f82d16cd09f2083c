// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/skflow/skflow/internal/sessionkey"
	"github.com/skflow/skflow/internal/signer"
	"github.com/skflow/skflow/internal/walletapi"
)

const (
	testAccount   = "0x00000000000000000000000000000000000ACC01"
	testSessionID = "0x5e55"
	testCallID    = "0xca11ca11ca11ca11ca11ca11ca11ca11ca11ca11"
	testTxHash    = "0x7777777777777777777777777777777777777777777777777777777777777777"
)

var testHash = "0x" + strings.Repeat("ab", 32)

// fakeBackend is an in-memory wallet API. Each method echoes the happy path
// unless its override is set.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	provisionErr error
	sessionErr   error
	sessionKey   func(params walletapi.CreateSessionParams) sessionkey.Key
	sendErr      error
	sendIDs      []string
	statuses     []walletapi.CallStatus

	lastSession walletapi.CreateSessionParams
	lastPrepare walletapi.PrepareCallsParams
	lastSend    walletapi.SendCallsParams

	// block, if set, is waited on inside ProvisionAccount.
	block chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:   make(map[string]int),
		sendIDs: []string{testCallID},
		statuses: []walletapi.CallStatus{
			{Status: 200, Receipts: []walletapi.Receipt{{"transactionHash": testTxHash}}},
		},
	}
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeBackend) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) ProvisionAccount(ctx context.Context, p walletapi.ProvisionParams) (*walletapi.SmartAccount, error) {
	f.hit("provision")
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.provisionErr != nil {
		return nil, f.provisionErr
	}
	return &walletapi.SmartAccount{AccountAddress: testAccount, ID: "acct-1"}, nil
}

func (f *fakeBackend) CreateSession(_ context.Context, p walletapi.CreateSessionParams) (*walletapi.Session, error) {
	f.hit("session")
	f.mu.Lock()
	f.lastSession = p
	f.mu.Unlock()
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	key := sessionkey.Key{Address: p.SessionKeyAddress}
	if f.sessionKey != nil {
		key = f.sessionKey(p)
	}
	return &walletapi.Session{
		SessionID:        testSessionID,
		SignatureRequest: walletapi.NewSignatureRequest("personal_sign", "0x1234"),
		SessionKey:       key,
	}, nil
}

func (f *fakeBackend) PrepareCalls(_ context.Context, p walletapi.PrepareCallsParams) (*walletapi.PreparedCall, error) {
	f.hit("prepare")
	f.mu.Lock()
	f.lastPrepare = p
	f.mu.Unlock()
	return &walletapi.PreparedCall{
		UserOpRequest:    json.RawMessage(`{"sender":"` + testAccount + `","nonce":"0x1"}`),
		SignatureRequest: walletapi.NewSignatureRequest("personal_sign", testHash),
		ChainID:          p.ChainID,
	}, nil
}

func (f *fakeBackend) SendPreparedCalls(_ context.Context, p walletapi.SendCallsParams) ([]string, error) {
	f.hit("send")
	f.mu.Lock()
	f.lastSend = p
	f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.sendIDs, nil
}

func (f *fakeBackend) CallStatus(_ context.Context, _ string) (*walletapi.CallStatus, error) {
	f.mu.Lock()
	f.calls["status"]++
	i := f.calls["status"] - 1
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	st := f.statuses[i]
	f.mu.Unlock()
	return &st, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestSigner() *signer.KeystoreSigner {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return signer.NewKeystoreSigner(key)
}

func testSettings() Settings {
	return Settings{
		UserID:         "user-1",
		ChainID:        "0xaa36a7",
		PermissionType: "root",
		SessionTime:    "1hour",
		Call:           walletapi.Call{To: "0x4Ff840AC60adbdCa20e5640fC2124F5d639Ea501", Value: "0x2386f26fc10000", Data: "0x"},
	}
}

func newTestOrchestrator(b Backend, opts ...Option) *Orchestrator {
	opts = append([]Option{WithPollSleep(noSleep)}, opts...)
	return New(b, newTestSigner(), testSettings(), opts...)
}

// runThrough runs steps 1..last and fails on any error.
func runThrough(ctx context.Context, o *Orchestrator, last Step) error {
	for _, s := range Steps {
		if s > last {
			break
		}
		ran, err := o.Run(ctx, s)
		if err != nil {
			return err
		}
		if !ran {
			return &StepError{Step: s, Message: "step did not run"}
		}
	}
	return nil
}
