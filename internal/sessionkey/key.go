// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package sessionkey

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrKeyGeneration indicates the entropy source failed. Callers must not retry.
	ErrKeyGeneration = errors.New("session key generation failed")

	// ErrInvalidPrivateKey indicates a malformed hex private key.
	ErrInvalidPrivateKey = errors.New("invalid session private key")

	// ErrInvalidHashFormat indicates the value to sign is not a 0x-prefixed byte string.
	ErrInvalidHashFormat = errors.New("invalid hash format")
)

// Key is a session keypair. JSON field names match the wallet API.
type Key struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey,omitempty"`
}

// Generate creates a fresh secp256k1 session key.
func Generate() (*Key, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return &Key{
		Address:    crypto.PubkeyToAddress(priv.PublicKey).Hex(),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(priv)),
	}, nil
}

// AddressOf derives the checksummed address of a hex private key.
func AddressOf(privateKeyHex string) (string, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return crypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
}

// String hides the private key so keys can be logged safely.
func (k *Key) String() string {
	return "sessionkey(" + k.Address + ")"
}
