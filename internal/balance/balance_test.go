// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package balance

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestFormatEther(t *testing.T) {
	tests := []struct {
		wei  string
		want string
	}{
		{"0", "0.0000"},
		{"10000000000000000", "0.0100"},
		{"1000000000000000000", "1.0000"},
		{"1234567890000000000", "1.2346"},
		{"99999", "0.0000"},
		{"123456000000000000000000", "123456.0000"},
	}
	for _, tt := range tests {
		wei, ok := new(big.Int).SetString(tt.wei, 10)
		if !ok {
			t.Fatalf("bad fixture %s", tt.wei)
		}
		if got := FormatEther(wei, 4); got != tt.want {
			t.Errorf("FormatEther(%s) = %s, want %s", tt.wei, got, tt.want)
		}
	}
	if got := FormatEther(nil, 2); got != "0.00" {
		t.Errorf("FormatEther(nil) = %s", got)
	}
}

type fakeReader struct {
	wei  *big.Int
	err  error
	seen common.Address
}

func (f *fakeReader) BalanceAt(_ context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	f.seen = account
	return f.wei, f.err
}

func TestCheckerEther(t *testing.T) {
	r := &fakeReader{wei: big.NewInt(2_500_000_000_000_000)}
	c := NewChecker(r)
	addr := "0x4Ff840AC60adbdCa20e5640fC2124F5d639Ea501"

	got, err := c.Ether(context.Background(), addr)
	if err != nil {
		t.Fatalf("Ether() error = %v", err)
	}
	if got != "0.0025" {
		t.Errorf("Ether() = %s, want 0.0025", got)
	}
	if r.seen != common.HexToAddress(addr) {
		t.Errorf("queried %s", r.seen.Hex())
	}
}

func TestCheckerErrors(t *testing.T) {
	rpcErr := errors.New("rpc down")
	c := NewChecker(&fakeReader{err: rpcErr})

	if _, err := c.Ether(context.Background(), "not-an-address"); err == nil {
		t.Error("expected error for invalid address")
	}
	if _, err := c.Ether(context.Background(), "0x4Ff840AC60adbdCa20e5640fC2124F5d639Ea501"); !errors.Is(err, rpcErr) {
		t.Errorf("error = %v, want rpc error", err)
	}
	if _, err := Dial(context.Background(), ""); !errors.Is(err, ErrNoRPC) {
		t.Errorf("Dial(\"\") error = %v, want ErrNoRPC", err)
	}
}
