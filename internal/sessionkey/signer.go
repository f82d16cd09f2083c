// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package sessionkey

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignHash signs hash with the session private key and returns the 65-byte
// r||s||v signature as 0x-hex, v in {27, 28}.
//
// The hash is signed as an EIP-191 personal message over its raw bytes, which
// is what the wallet backend expects for a prepared call's personal_sign request.
func SignHash(privateKeyHex, hash string) (string, error) {
	payload, err := decodeHash(hash)
	if err != nil {
		return "", err
	}

	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	sig, err := crypto.Sign(accounts.TextHash(payload), priv)
	if err != nil {
		return "", fmt.Errorf("failed to sign hash: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the address that produced sig over hash with SignHash.
func RecoverAddress(hash, sig string) (string, error) {
	payload, err := decodeHash(hash)
	if err != nil {
		return "", err
	}
	raw, err := hexutil.Decode(sig)
	if err != nil || len(raw) != crypto.SignatureLength {
		return "", fmt.Errorf("invalid signature %q", sig)
	}
	raw[crypto.RecoveryIDOffset] -= 27

	pub, err := crypto.SigToPub(accounts.TextHash(payload), raw)
	if err != nil {
		return "", fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func decodeHash(hash string) ([]byte, error) {
	payload, err := hexutil.Decode(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHashFormat, err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty hash", ErrInvalidHashFormat)
	}
	return payload, nil
}
