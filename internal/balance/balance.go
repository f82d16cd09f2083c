// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package balance reads native balances over JSON-RPC.
package balance

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNoRPC indicates no RPC URL is configured.
var ErrNoRPC = errors.New("no rpc_url configured")

var weiPerEther = big.NewInt(1_000_000_000_000_000_000)

// Reader is the subset of ethclient.Client used here.
type Reader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Checker looks up balances through a Reader.
type Checker struct {
	reader Reader
	close  func()
}

// Dial connects to the JSON-RPC endpoint at rpcURL.
func Dial(ctx context.Context, rpcURL string) (*Checker, error) {
	if rpcURL == "" {
		return nil, ErrNoRPC
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	return &Checker{reader: client, close: client.Close}, nil
}

// NewChecker wraps an existing Reader.
func NewChecker(r Reader) *Checker {
	return &Checker{reader: r}
}

// Close releases the RPC connection, if owned.
func (c *Checker) Close() {
	if c.close != nil {
		c.close()
	}
}

// Wei returns the latest balance of address in wei.
func (c *Checker) Wei(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	wei, err := c.reader.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	return wei, nil
}

// Ether returns the latest balance of address formatted in ether with four decimals.
func (c *Checker) Ether(ctx context.Context, address string) (string, error) {
	wei, err := c.Wei(ctx, address)
	if err != nil {
		return "", err
	}
	return FormatEther(wei, 4), nil
}

// FormatEther renders wei as ether rounded to decimals places.
func FormatEther(wei *big.Int, decimals int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	return new(big.Rat).SetFrac(wei, weiPerEther).FloatString(decimals)
}
