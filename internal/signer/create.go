// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package signer

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/skflow/skflow/internal/fsutil"
)

// CreateKeystore generates a new key, writes it encrypted with passphrase to
// path and returns its address. An existing file is never overwritten.
func CreateKeystore(path string, passphrase []byte, light bool) (string, error) {
	if len(passphrase) == 0 {
		return "", ErrPassphraseRequired
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("refusing to overwrite %s", path)
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
		PrivateKey: priv,
	}

	scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
	if light {
		scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	}
	data, err := keystore.EncryptKey(key, string(passphrase), scryptN, scryptP)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt key: %w", err)
	}

	if err := fsutil.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("failed to write keystore: %w", err)
	}
	return key.Address.Hex(), nil
}
