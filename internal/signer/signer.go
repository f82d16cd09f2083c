// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package signer provides the primary signer: the key that owns the smart
// account and approves session authorizations.
//
// Signer is the seam to whatever holds the primary key. KeystoreSigner is the
// file-backed implementation used by the shell and dashboard.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/skflow/skflow/internal/walletapi"
)

// Signature request types understood by SignRequest.
const (
	TypePersonalSign = "personal_sign"
	TypeEthSign      = "eth_sign"
)

var (
	// ErrNoKey indicates the signer has no key loaded.
	ErrNoKey = errors.New("no signer key loaded")

	// ErrPassphraseRequired indicates an encrypted keystore was loaded without a passphrase.
	ErrPassphraseRequired = errors.New("keystore passphrase required")

	// ErrUnsupportedRequest indicates a signature request this signer cannot satisfy.
	ErrUnsupportedRequest = errors.New("unsupported signature request")
)

// Signer is the primary signer.
type Signer interface {
	// Address returns the 0x-prefixed checksummed address of the key.
	Address(ctx context.Context) (string, error)

	// SignRequest signs req and returns a 65-byte 0x-hex signature, v in {27, 28}.
	SignRequest(ctx context.Context, req walletapi.SignatureRequest) (string, error)
}

// KeystoreSigner holds a secp256k1 key loaded from a file.
type KeystoreSigner struct {
	mu   sync.RWMutex
	key  *ecdsa.PrivateKey
	path string
}

// NewKeystoreSigner wraps an in-memory private key.
func NewKeystoreSigner(key *ecdsa.PrivateKey) *KeystoreSigner {
	return &KeystoreSigner{key: key}
}

// LoadFile loads a signer key from path. The file is either a go-ethereum
// encrypted keystore (JSON, decrypted with passphrase) or a single line with a
// hex private key.
func LoadFile(path string, passphrase []byte) (*KeystoreSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signer key file: %w", err)
	}
	key, err := ParseKey(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &KeystoreSigner{key: key, path: path}, nil
}

// IsEncrypted reports whether data looks like an encrypted keystore.
func IsEncrypted(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{")
}

// ParseKey decodes key file contents.
func ParseKey(data, passphrase []byte) (*ecdsa.PrivateKey, error) {
	if IsEncrypted(data) {
		if len(passphrase) == 0 {
			return nil, ErrPassphraseRequired
		}
		k, err := keystore.DecryptKey(data, string(passphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
		}
		return k.PrivateKey, nil
	}

	hexKey := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// Path returns the file the key was loaded from, or "" for in-memory keys.
func (s *KeystoreSigner) Path() string {
	return s.path
}

// Address implements Signer.
func (s *KeystoreSigner) Address(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return "", ErrNoKey
	}
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex(), nil
}

// PublicKey returns the uncompressed public key as 0x-hex.
func (s *KeystoreSigner) PublicKey() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return "", ErrNoKey
	}
	return hexutil.Encode(crypto.FromECDSAPub(&s.key.PublicKey)), nil
}

// SignRequest implements Signer.
//
// personal_sign and eth_sign payloads are signed as EIP-191 messages over the
// raw bytes. Any other type is accepted only for a 32-byte payload, which is
// signed as a digest.
func (s *KeystoreSigner) SignRequest(ctx context.Context, req walletapi.SignatureRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	payload, err := hexutil.Decode(req.Data.Raw)
	if err != nil {
		return "", fmt.Errorf("%w: data.raw: %v", ErrUnsupportedRequest, err)
	}

	var digest []byte
	switch req.Type {
	case TypePersonalSign, TypeEthSign, "":
		digest = accounts.TextHash(payload)
	default:
		if len(payload) != 32 {
			return "", fmt.Errorf("%w: type %q with %d-byte payload", ErrUnsupportedRequest, req.Type, len(payload))
		}
		digest = payload
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return "", ErrNoKey
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Close drops the key from memory.
func (s *KeystoreSigner) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		b := s.key.D.Bits()
		for i := range b {
			b[i] = 0
		}
		s.key = nil
	}
}
