// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package sessionkey generates the local keypair that acts as the delegated
// session signer, and signs user-operation hashes with it.
//
// Keys live only in memory. Signing is a pure function of (private key, hash):
// secp256k1 signatures from go-ethereum use RFC 6979 nonces, so the same input
// always yields the same signature.
package sessionkey
