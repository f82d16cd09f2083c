// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package signer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/skflow/skflow/internal/walletapi"
)

// Well-known development key (hardhat account #0).
const (
	testKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testSigner(t *testing.T) *KeystoreSigner {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatal(err)
	}
	return NewKeystoreSigner(key)
}

func recoverSigner(t *testing.T, digest []byte, sigHex string) string {
	t.Helper()
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("v = %d, want 27 or 28", v)
	}
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatal(err)
	}
	return crypto.PubkeyToAddress(*pub).Hex()
}

func TestAddress(t *testing.T) {
	addr, err := testSigner(t).Address(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if addr != testAddress {
		t.Errorf("Address() = %s, want %s", addr, testAddress)
	}
}

func TestSignRequest(t *testing.T) {
	s := testSigner(t)
	raw := "0x" + strings.Repeat("ab", 32)
	payload := hexutil.MustDecode(raw)

	tests := []struct {
		name   string
		typ    string
		digest []byte
	}{
		{"personal sign", TypePersonalSign, accounts.TextHash(payload)},
		{"eth sign", TypeEthSign, accounts.TextHash(payload)},
		{"untyped", "", accounts.TextHash(payload)},
		{"raw digest", "eth_signRaw", payload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := s.SignRequest(context.Background(), walletapi.NewSignatureRequest(tt.typ, raw))
			if err != nil {
				t.Fatalf("SignRequest() error = %v", err)
			}
			if got := recoverSigner(t, tt.digest, sig); got != testAddress {
				t.Errorf("recovered %s, want %s", got, testAddress)
			}
		})
	}
}

func TestSignRequestRejects(t *testing.T) {
	s := testSigner(t)
	tests := []struct {
		name string
		req  walletapi.SignatureRequest
	}{
		{"non-hex", walletapi.NewSignatureRequest(TypePersonalSign, "hello")},
		{"digest wrong length", walletapi.NewSignatureRequest("eth_signTypedData_v4", "0x1234")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SignRequest(context.Background(), tt.req)
			if !errors.Is(err, ErrUnsupportedRequest) {
				t.Errorf("error = %v, want ErrUnsupportedRequest", err)
			}
		})
	}
}

func TestSignRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testSigner(t).SignRequest(ctx, walletapi.NewSignatureRequest(TypePersonalSign, "0x01"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestClose(t *testing.T) {
	s := testSigner(t)
	s.Close()
	if _, err := s.Address(context.Background()); !errors.Is(err, ErrNoKey) {
		t.Errorf("Address() after Close error = %v, want ErrNoKey", err)
	}
}

func TestLoadFileHex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signer.key")
	if err := os.WriteFile(path, []byte("0x"+testKeyHex+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadFile(path, nil)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	addr, _ := s.Address(context.Background())
	if addr != testAddress {
		t.Errorf("Address() = %s", addr)
	}
	if s.Path() != path {
		t.Errorf("Path() = %s", s.Path())
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "primary.json")
	pass := []byte("correct horse")

	addr, err := CreateKeystore(path, pass, true)
	if err != nil {
		t.Fatalf("CreateKeystore() error = %v", err)
	}
	if _, err := CreateKeystore(path, pass, true); err == nil {
		t.Error("CreateKeystore() overwrote an existing file")
	}

	if _, err := LoadFile(path, nil); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("LoadFile() without passphrase error = %v", err)
	}
	if _, err := LoadFile(path, []byte("wrong")); err == nil {
		t.Error("LoadFile() accepted a wrong passphrase")
	}

	s, err := LoadFile(path, pass)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	got, _ := s.Address(context.Background())
	if got != addr {
		t.Errorf("Address() = %s, want %s", got, addr)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.key")
	if err := os.WriteFile(path, []byte("not a key"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path, nil); err == nil {
		t.Error("expected error for invalid key")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPublicKey(t *testing.T) {
	pub, err := testSigner(t).PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(pub, "0x04") || len(pub) != 2+2*65 {
		t.Errorf("PublicKey() = %s", pub)
	}
}
