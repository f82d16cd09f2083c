// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/skflow/skflow/internal/poller"
	"github.com/skflow/skflow/internal/sessionkey"
	"github.com/skflow/skflow/internal/walletapi"
)

func TestStepNames(t *testing.T) {
	for _, s := range Steps {
		parsed, err := ParseStep(s.String())
		if err != nil || parsed != s {
			t.Errorf("ParseStep(%q) = %v, %v", s.String(), parsed, err)
		}
	}
	if s, err := ParseStep("4"); err != nil || s != StepAuthorizeSession {
		t.Errorf("ParseStep(4) = %v, %v", s, err)
	}
	if _, err := ParseStep("7"); err == nil {
		t.Error("ParseStep(7) succeeded")
	}
}

func TestOutOfOrderRunsAreNoOps(t *testing.T) {
	b := newFakeBackend()
	o := newTestOrchestrator(b)
	ctx := context.Background()

	if o.CurrentStep() != StepSignerAddress {
		t.Fatalf("CurrentStep() = %v", o.CurrentStep())
	}
	for _, s := range []Step{StepSignAndSend, StepPrepareCalls, StepAuthorizeSession, StepCreateSession, StepProvisionAccount, 0, Done} {
		ran, err := o.Run(ctx, s)
		if ran || err != nil {
			t.Errorf("Run(%v) = %v, %v; want no-op", s, ran, err)
		}
	}
	if b.total() != 0 {
		t.Errorf("backend called %d times, want 0", b.total())
	}
	if !o.IsAccessible(StepSignerAddress) || o.IsAccessible(StepProvisionAccount) {
		t.Error("only step 1 should be accessible")
	}
}

func TestRunWithoutSigner(t *testing.T) {
	o := New(newFakeBackend(), nil, testSettings())
	if o.CanRun(StepSignerAddress) {
		t.Error("CanRun(1) without signer")
	}
	o.SetSigner(newTestSigner())
	if !o.CanRun(StepSignerAddress) {
		t.Error("CanRun(1) false after SetSigner")
	}
}

func TestFullRun(t *testing.T) {
	b := newFakeBackend()
	b.statuses = []walletapi.CallStatus{
		{Status: 100},
		{Status: 200, Receipts: []walletapi.Receipt{{"hash": testTxHash}}},
	}
	now := time.Unix(1_700_000_000, 0)
	o := newTestOrchestrator(b, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if err := runThrough(ctx, o, StepSignAndSend); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	snap := o.Snapshot()
	if snap.Current != Done {
		t.Errorf("Current = %v, want done", snap.Current)
	}
	if snap.Submission == nil || snap.Submission.TxHash != testTxHash || snap.Submission.PollErr != nil {
		t.Fatalf("Submission = %+v", snap.Submission)
	}
	if b.count("status") != 2 {
		t.Errorf("status polled %d times, want 2", b.count("status"))
	}

	// Request contents flow from earlier outputs.
	if b.lastSession.Account != testAccount || b.lastSession.Expiry != now.Unix()+3600 || b.lastSession.PermissionType != "root" {
		t.Errorf("create-session params = %+v", b.lastSession)
	}
	if b.lastSession.SessionKeyAddress != snap.Session.SessionKey.Address {
		t.Error("session key address not the generated one")
	}
	if b.lastPrepare.SessionID != testSessionID || b.lastPrepare.Signature != snap.Authorization.Signature {
		t.Errorf("prepare params = %+v", b.lastPrepare)
	}
	if len(b.lastPrepare.Calls) != 1 || b.lastPrepare.Calls[0].Value != "0x2386f26fc10000" {
		t.Errorf("prepare calls = %+v", b.lastPrepare.Calls)
	}
	if string(b.lastSend.UserOpRequest) != `{"sender":"`+testAccount+`","nonce":"0x1"}` {
		t.Errorf("userOpRequest = %s", b.lastSend.UserOpRequest)
	}
	signer, err := sessionkey.RecoverAddress(testHash, b.lastSend.UserOpSignature)
	if err != nil || !strings.EqualFold(signer, snap.Session.SessionKey.Address) {
		t.Errorf("userOpSignature recovers to %s, %v", signer, err)
	}

	// Snapshots never carry the session private key.
	if snap.Session.SessionKey.PrivateKey != "" {
		t.Error("snapshot leaked session private key")
	}

	for _, s := range Steps {
		if !o.IsCompleted(s) {
			t.Errorf("step %v not completed", s)
		}
		wantCollapsed := s != StepSignAndSend
		if o.IsCollapsed(s) != wantCollapsed {
			t.Errorf("IsCollapsed(%v) = %v, want %v", s, o.IsCollapsed(s), wantCollapsed)
		}
	}
}

func TestStartingStepCollapsesOnlyCompletedPrevious(t *testing.T) {
	b := newFakeBackend()
	o := newTestOrchestrator(b)
	ctx := context.Background()

	if _, err := o.Run(ctx, StepSignerAddress); err != nil {
		t.Fatal(err)
	}
	if o.IsCollapsed(StepSignerAddress) {
		t.Error("completing a step must not collapse it")
	}

	b.provisionErr = errors.New("boom")
	if _, err := o.Run(ctx, StepProvisionAccount); err == nil {
		t.Fatal("expected provision failure")
	}
	if !o.IsCollapsed(StepSignerAddress) {
		t.Error("starting step 2 did not collapse completed step 1")
	}

	// Step 2 failed, so starting step 2 again must not collapse anything new
	// and step 1 output must survive.
	if !o.IsCompleted(StepSignerAddress) || o.CurrentStep() != StepProvisionAccount {
		t.Error("failure altered an earlier step")
	}
	if o.IsCollapsed(StepProvisionAccount) {
		t.Error("failed step collapsed")
	}
}

func TestToggleCollapse(t *testing.T) {
	o := newTestOrchestrator(newFakeBackend())
	if o.ToggleCollapse(StepSignerAddress) {
		t.Error("toggled a pending step")
	}
	if _, err := o.Run(context.Background(), StepSignerAddress); err != nil {
		t.Fatal(err)
	}
	if !o.ToggleCollapse(StepSignerAddress) || !o.IsCollapsed(StepSignerAddress) {
		t.Error("toggle did not collapse")
	}
	if !o.ToggleCollapse(StepSignerAddress) || o.IsCollapsed(StepSignerAddress) {
		t.Error("toggle did not expand")
	}
	if !o.IsCompleted(StepSignerAddress) {
		t.Error("collapse changed completion")
	}
}

func TestRerunClearsLaterSteps(t *testing.T) {
	b := newFakeBackend()
	o := newTestOrchestrator(b)
	ctx := context.Background()

	if err := runThrough(ctx, o, StepPrepareCalls); err != nil {
		t.Fatal(err)
	}
	firstKey := o.Snapshot().Session.SessionKey.Address

	if err := o.SetPermissionType("native-token-transfer"); err != nil {
		t.Fatal(err)
	}
	ran, err := o.Run(ctx, StepCreateSession)
	if !ran || err != nil {
		t.Fatalf("Run(3) = %v, %v", ran, err)
	}

	snap := o.Snapshot()
	if snap.Current != StepAuthorizeSession {
		t.Errorf("Current = %v, want authorize-session", snap.Current)
	}
	if snap.Authorization != nil || snap.Prepared != nil {
		t.Error("later outputs survived a re-run")
	}
	if o.IsCompleted(StepAuthorizeSession) || o.IsCompleted(StepPrepareCalls) {
		t.Error("later steps still completed")
	}
	if snap.Account == nil || !o.IsCompleted(StepProvisionAccount) {
		t.Error("earlier outputs lost")
	}
	if snap.Session.SessionKey.Address == firstKey {
		t.Error("session key reused across attempts")
	}
	if b.lastSession.PermissionType != "native-token-transfer" {
		t.Errorf("permission type = %s", b.lastSession.PermissionType)
	}
}

func TestSessionKeyBinding(t *testing.T) {
	local, err := sessionkey.Generate()
	if err != nil {
		t.Fatal(err)
	}
	other, err := sessionkey.Generate()
	if err != nil {
		t.Fatal(err)
	}

	got, err := bindSessionKey(sessionkey.Key{Address: strings.ToLower(local.Address)}, local)
	if err != nil || got.PrivateKey != local.PrivateKey {
		t.Errorf("address-only key: %+v, %v", got, err)
	}

	got, err = bindSessionKey(*other, local)
	if err != nil || got.PrivateKey != other.PrivateKey || got.Address != other.Address {
		t.Errorf("backend-generated key: %+v, %v", got, err)
	}

	if _, err := bindSessionKey(sessionkey.Key{Address: other.Address}, local); !errors.Is(err, ErrSessionKeyMismatch) {
		t.Errorf("foreign address error = %v", err)
	}
	if _, err := bindSessionKey(sessionkey.Key{Address: local.Address, PrivateKey: other.PrivateKey}, local); !errors.Is(err, ErrSessionKeyMismatch) {
		t.Errorf("inconsistent key error = %v", err)
	}
}

func TestCreateSessionMismatch(t *testing.T) {
	b := newFakeBackend()
	b.sessionKey = func(walletapi.CreateSessionParams) sessionkey.Key {
		return sessionkey.Key{Address: "0x000000000000000000000000000000000000dEaD"}
	}
	o := newTestOrchestrator(b)
	ctx := context.Background()

	err := runThrough(ctx, o, StepCreateSession)
	if !errors.Is(err, ErrSessionKeyMismatch) {
		t.Fatalf("error = %v, want ErrSessionKeyMismatch", err)
	}
	if o.IsCompleted(StepCreateSession) || o.CurrentStep() != StepCreateSession {
		t.Error("mismatched session was kept")
	}
	st, _ := o.Snapshot().StepState(StepCreateSession)
	if st.Error == "" {
		t.Error("no error recorded for step 3")
	}
}

func TestRemoteFailureRecorded(t *testing.T) {
	b := newFakeBackend()
	b.sessionErr = &walletapi.APIError{Endpoint: walletapi.EndpointCreateSession, Status: 500, Message: "Failed to create session"}
	o := newTestOrchestrator(b)

	err := runThrough(context.Background(), o, StepCreateSession)
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepCreateSession {
		t.Fatalf("error = %v, want StepError for step 3", err)
	}
	if !errors.Is(err, walletapi.ErrRemote) {
		t.Error("remote failure does not match ErrRemote")
	}
	st, _ := o.Snapshot().StepState(StepCreateSession)
	if st.Error != "Failed to create session" {
		t.Errorf("recorded error = %q", st.Error)
	}

	// Retrying clears the recorded error.
	b.sessionErr = nil
	if ran, err := o.Run(context.Background(), StepCreateSession); !ran || err != nil {
		t.Fatalf("retry = %v, %v", ran, err)
	}
	st, _ = o.Snapshot().StepState(StepCreateSession)
	if st.Error != "" {
		t.Errorf("stale error %q", st.Error)
	}
}

func TestSendRemediation(t *testing.T) {
	b := newFakeBackend()
	b.sendErr = &walletapi.APIError{
		Endpoint: walletapi.EndpointSendCalls,
		Status:   400,
		Message:  "precheck failed: sender balance and deposit together is 0",
	}
	o := newTestOrchestrator(b)

	err := runThrough(context.Background(), o, StepSignAndSend)
	if err == nil {
		t.Fatal("expected send failure")
	}
	want := "You must fund the smart account " + testAccount + " (from the provision step) with Sepolia ETH!"
	if !strings.HasPrefix(err.Error(), want) {
		t.Errorf("error = %q, want prefix %q", err.Error(), want)
	}
	var apiErr *walletapi.APIError
	if !errors.As(err, &apiErr) {
		t.Error("remediated error lost the APIError")
	}
	if o.IsCompleted(StepSignAndSend) || !o.IsCompleted(StepPrepareCalls) {
		t.Error("unexpected completion state after send failure")
	}
	if b.count("status") != 0 {
		t.Error("polled after failed send")
	}
}

func TestSubmittedCallIsNotResent(t *testing.T) {
	b := newFakeBackend()
	o := newTestOrchestrator(b)
	ctx := context.Background()

	if err := runThrough(ctx, o, StepSignAndSend); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// A repeat would be rejected for the used nonce and must not cost the
	// recorded submission.
	b.sendErr = errors.New("AA25 invalid account nonce")
	if o.CanRun(StepSignAndSend) {
		t.Error("CanRun(sign-and-send) = true after submission")
	}
	ran, err := o.Run(ctx, StepSignAndSend)
	if ran || err != nil {
		t.Fatalf("Run(sign-and-send) = %v, %v; want false, nil", ran, err)
	}
	if b.count("send") != 1 {
		t.Errorf("send called %d times, want 1", b.count("send"))
	}
	sub := o.Snapshot().Submission
	if sub == nil || sub.TxHash != testTxHash {
		t.Errorf("Submission = %+v, want tx hash kept", sub)
	}
	if !o.IsCompleted(StepSignAndSend) || o.CurrentStep() != Done {
		t.Error("sign-and-send no longer completed")
	}

	// Preparing again opens a new submission.
	b.sendErr = nil
	if ran, err := o.Run(ctx, StepPrepareCalls); !ran || err != nil {
		t.Fatalf("Run(prepare-calls) = %v, %v", ran, err)
	}
	if o.IsCompleted(StepSignAndSend) || !o.CanRun(StepSignAndSend) {
		t.Error("sign-and-send not runnable after preparing again")
	}
	if ran, err := o.Run(ctx, StepSignAndSend); !ran || err != nil {
		t.Fatalf("second submission = %v, %v", ran, err)
	}
	if b.count("send") != 2 {
		t.Errorf("send called %d times, want 2", b.count("send"))
	}
}

func TestPollFailureKeepsStepCompleted(t *testing.T) {
	b := newFakeBackend()
	b.statuses = []walletapi.CallStatus{{Status: 500}}
	o := newTestOrchestrator(b)

	err := runThrough(context.Background(), o, StepSignAndSend)
	if !errors.Is(err, poller.ErrTransactionFailed) {
		t.Fatalf("error = %v, want ErrTransactionFailed", err)
	}
	if !o.IsCompleted(StepSignAndSend) || o.CurrentStep() != Done {
		t.Error("submission not recorded as completed")
	}
	snap := o.Snapshot()
	if !errors.Is(snap.Submission.PollErr, poller.ErrTransactionFailed) || snap.Submission.TxHash != "" {
		t.Errorf("Submission = %+v", snap.Submission)
	}
	if b.count("status") != 1 {
		t.Errorf("status polled %d times, want 1", b.count("status"))
	}
	st, _ := snap.StepState(StepSignAndSend)
	if st.Error != "" {
		t.Errorf("poll failure recorded as step error %q", st.Error)
	}
}

func TestPollTimeout(t *testing.T) {
	b := newFakeBackend()
	b.statuses = []walletapi.CallStatus{{Status: 100}}
	o := newTestOrchestrator(b, WithPollBudget(4, time.Millisecond))

	err := runThrough(context.Background(), o, StepSignAndSend)
	if !errors.Is(err, poller.ErrPollingTimeout) {
		t.Fatalf("error = %v, want ErrPollingTimeout", err)
	}
	if b.count("status") != 4 {
		t.Errorf("status polled %d times, want 4", b.count("status"))
	}
	if o.Snapshot().PollAttempt != 4 {
		t.Errorf("PollAttempt = %d", o.Snapshot().PollAttempt)
	}
}

func TestEmptyCallIDs(t *testing.T) {
	b := newFakeBackend()
	b.sendIDs = []string{}
	o := newTestOrchestrator(b)

	if err := runThrough(context.Background(), o, StepSignAndSend); err != nil {
		t.Fatalf("error = %v", err)
	}
	if !o.IsCompleted(StepSignAndSend) {
		t.Error("step 6 not completed")
	}
	if b.count("status") != 0 {
		t.Error("polled without a call id")
	}
	if sub := o.Snapshot().Submission; sub.Polled != "" || sub.TxHash != "" {
		t.Errorf("Submission = %+v", sub)
	}
}

func TestBusyOrchestratorRefusesRuns(t *testing.T) {
	b := newFakeBackend()
	b.block = make(chan struct{})
	o := newTestOrchestrator(b)
	ctx := context.Background()

	if _, err := o.Run(ctx, StepSignerAddress); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(ctx, StepProvisionAccount)
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for b.count("provision") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("provision never started")
		}
		time.Sleep(time.Millisecond)
	}

	if !o.IsRunning() {
		t.Error("IsRunning() = false during provision")
	}
	for _, s := range []Step{StepSignerAddress, StepProvisionAccount} {
		if ran, err := o.Run(ctx, s); ran || err != nil {
			t.Errorf("Run(%v) while busy = %v, %v", s, ran, err)
		}
	}
	if o.Reset() {
		t.Error("Reset() succeeded while busy")
	}

	close(b.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if b.count("provision") != 1 {
		t.Errorf("provision called %d times", b.count("provision"))
	}
}

func TestSelections(t *testing.T) {
	o := newTestOrchestrator(newFakeBackend())
	if err := o.SetPermissionType("admin"); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("SetPermissionType(admin) = %v", err)
	}
	if err := o.SetSessionTime("1week"); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("SetSessionTime(1week) = %v", err)
	}
	if err := o.SetSessionTime("5min"); err != nil {
		t.Fatal(err)
	}
	if o.Settings().SessionTime != "5min" {
		t.Errorf("SessionTime = %s", o.Settings().SessionTime)
	}
}

func TestResetAndListener(t *testing.T) {
	var snaps []Snapshot
	o := newTestOrchestrator(newFakeBackend(), WithListener(func(s Snapshot) { snaps = append(snaps, s) }))
	ctx := context.Background()

	if err := runThrough(ctx, o, StepProvisionAccount); err != nil {
		t.Fatal(err)
	}
	if len(snaps) < 4 {
		t.Errorf("listener called %d times, want at least 4", len(snaps))
	}
	var sawRunning bool
	for _, s := range snaps {
		if s.Running == StepProvisionAccount {
			sawRunning = true
		}
	}
	if !sawRunning {
		t.Error("listener never saw step 2 running")
	}

	if !o.Reset() {
		t.Fatal("Reset() refused")
	}
	if o.CurrentStep() != StepSignerAddress || o.IsCompleted(StepSignerAddress) {
		t.Error("Reset() kept outputs")
	}
}
