// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package authz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/skflow/skflow/internal/signer"
	"github.com/skflow/skflow/internal/walletapi"
)

type stubSigner struct {
	sig   string
	err   error
	calls int
}

func (s *stubSigner) Address(context.Context) (string, error) { return "0xabc", nil }

func (s *stubSigner) SignRequest(context.Context, walletapi.SignatureRequest) (string, error) {
	s.calls++
	return s.sig, s.err
}

func TestAuthorize(t *testing.T) {
	stub := &stubSigner{sig: "0x" + strings.Repeat("11", 65)}
	a := New(stub)

	got, err := a.Authorize(context.Background(), "0xdead", walletapi.NewSignatureRequest("personal_sign", "0xbeef"))
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if got.SessionID != "0xdead" {
		t.Errorf("SessionID = %s", got.SessionID)
	}
	if got.Signature != stub.sig {
		t.Errorf("Signature = %s", got.Signature)
	}
	want := "0x00dead" + strings.Repeat("11", 65)
	if got.Authorization != want {
		t.Errorf("Authorization = %s, want %s", got.Authorization, want)
	}
	if stub.calls != 1 {
		t.Errorf("signer called %d times, want 1", stub.calls)
	}
}

func TestAuthorizeSignerFailure(t *testing.T) {
	rejected := errors.New("user rejected")
	stub := &stubSigner{err: rejected}

	_, err := New(stub).Authorize(context.Background(), "0x01", walletapi.NewSignatureRequest("personal_sign", "0x02"))
	if !errors.Is(err, ErrAuthorizationSigning) || !errors.Is(err, rejected) {
		t.Errorf("error = %v, want ErrAuthorizationSigning wrapping the cause", err)
	}
	if stub.calls != 1 {
		t.Errorf("signer called %d times, want 1 (no retry)", stub.calls)
	}
}

func TestAuthorizeInvalidInput(t *testing.T) {
	stub := &stubSigner{sig: "0x01"}
	a := New(stub)
	tests := []struct {
		name      string
		sessionID string
		raw       string
	}{
		{"empty session", "", "0x01"},
		{"empty request", "0x01", ""},
		{"non-hex session", "session-1", "0x01"},
		{"odd-length session", "0xabc", "0x01"},
		{"uuid session", "6f1c2a9e-3b4d-4e5f-8a7b-1c2d3e4f5a6b", "0x01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub.calls = 0
			_, err := a.Authorize(context.Background(), tt.sessionID, walletapi.NewSignatureRequest("personal_sign", tt.raw))
			if !errors.Is(err, ErrInvalidSession) {
				t.Errorf("error = %v, want ErrInvalidSession", err)
			}
			if stub.calls != 0 {
				t.Errorf("signer called %d times for invalid input, want 0", stub.calls)
			}
		})
	}
}

func TestAuthorizeWithKeystoreSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	a := New(signer.NewKeystoreSigner(key))

	got, err := a.Authorize(context.Background(), "0xabcdef", walletapi.NewSignatureRequest("personal_sign", "0x1234"))
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	// 0x + version byte + 3-byte session id + 65-byte signature
	if len(got.Authorization) != 2+2*(1+3+65) {
		t.Errorf("Authorization length = %d", len(got.Authorization))
	}
	if !strings.HasPrefix(got.Authorization, "0x00abcdef") {
		t.Errorf("Authorization = %s", got.Authorization)
	}
}
