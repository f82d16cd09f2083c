// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package scripting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/skflow/skflow/internal/jsapi"
	"github.com/skflow/skflow/internal/signer"
	"github.com/skflow/skflow/internal/walletapi"
	"github.com/skflow/skflow/internal/workflow"
)

func newTestRunner(t *testing.T) *GojaRunner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	// The backend is never reached by these scripts.
	flow := workflow.New(walletapi.New("http://127.0.0.1:0"), signer.NewKeystoreSigner(key), workflow.Settings{
		UserID:         "u",
		ChainID:        "0xaa36a7",
		PermissionType: "root",
		SessionTime:    "1hour",
	})
	return NewGojaRunner(jsapi.Deps{Flow: flow})
}

func TestRunResults(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	res, err := r.Run(ctx, `1 + 2`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.IsEmpty || res.Value != int64(3) {
		t.Errorf("Run() = %+v, want 3", res)
	}

	res, err = r.Run(ctx, `var x = 5`)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsEmpty {
		t.Errorf("declaration should be empty, got %+v", res)
	}

	// State persists between runs
	res, err = r.Run(ctx, `x * 2`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != int64(10) {
		t.Errorf("x * 2 = %v, want 10", res.Value)
	}
}

func TestRunScriptError(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.Run(context.Background(), `throw new Error("boom")`)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("error = %T %v, want *ScriptError", err, err)
	}
	if !strings.Contains(scriptErr.Message, "boom") {
		t.Errorf("message = %q", scriptErr.Message)
	}

	_, err = r.Run(context.Background(), `currentStep(`)
	if err == nil {
		t.Error("expected syntax error")
	}
}

func TestRunOutput(t *testing.T) {
	r := newTestRunner(t)
	var got []string
	r.SetOutput(func(s string) { got = append(got, s) })

	if _, err := r.Run(context.Background(), `print("step", currentStep())`); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "step1" {
		t.Errorf("output = %q, want [step1]", got)
	}

	r.SetOutput(nil)
	if _, err := r.Run(context.Background(), `print("dropped")`); err != nil {
		t.Fatal(err)
	}
}

func TestRunCancelled(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, `for (;;) {}`)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}

	// The runtime is usable again afterwards
	res, err := r.Run(context.Background(), `"ok"`)
	if err != nil || res.Value != "ok" {
		t.Errorf("Run() after cancel = %+v, %v", res, err)
	}
}
