// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package authz turns a created session into an authorized one by having the
// primary signer sign the session's signature request.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/skflow/skflow/internal/signer"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/walletapi"
)

var (
	// ErrAuthorizationSigning indicates the primary signer refused or failed.
	ErrAuthorizationSigning = errors.New("failed to sign session authorization")

	// ErrInvalidSession indicates a session id or signature request that cannot be authorized.
	ErrInvalidSession = errors.New("invalid session")
)

// contextVersion prefixes the permissions context.
const contextVersion = "00"

// Authorization is an authorized session.
type Authorization struct {
	SessionID string `json:"sessionId"`
	Signature string `json:"signature"`

	// Authorization is the permissions context 0x00 || sessionId || signature.
	Authorization string `json:"authorization"`
}

// Authorizer signs session authorizations with the primary signer.
type Authorizer struct {
	Signer signer.Signer
}

// New creates an Authorizer.
func New(s signer.Signer) *Authorizer {
	return &Authorizer{Signer: s}
}

// Authorize signs req for sessionID. The signer is asked exactly once.
func (a *Authorizer) Authorize(ctx context.Context, sessionID string, req walletapi.SignatureRequest) (*Authorization, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrInvalidSession)
	}
	// Checked before signing so a malformed id never costs a signature.
	if _, err := hexutil.Decode(sessionID); err != nil {
		return nil, fmt.Errorf("%w: session id %q: %v", ErrInvalidSession, sessionID, err)
	}
	if req.Data.Raw == "" {
		return nil, fmt.Errorf("%w: empty signature request", ErrInvalidSession)
	}
	if a.Signer == nil {
		return nil, fmt.Errorf("%w: no signer", ErrAuthorizationSigning)
	}

	util.Debug("signing session authorization", "session_id", sessionID, "type", req.Type)

	sig, err := a.Signer.SignRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationSigning, err)
	}

	permCtx, err := PermissionsContext(sessionID, sig)
	if err != nil {
		return nil, err
	}

	return &Authorization{
		SessionID:     sessionID,
		Signature:     sig,
		Authorization: permCtx,
	}, nil
}

// PermissionsContext concatenates the version byte, the session id and the
// signature. Both inputs must be 0x-hex.
func PermissionsContext(sessionID, signature string) (string, error) {
	if _, err := hexutil.Decode(sessionID); err != nil {
		return "", fmt.Errorf("%w: session id %q: %v", ErrInvalidSession, sessionID, err)
	}
	if _, err := hexutil.Decode(signature); err != nil {
		return "", fmt.Errorf("%w: signature: %v", ErrAuthorizationSigning, err)
	}
	return "0x" + contextVersion + strings.TrimPrefix(sessionID, "0x") + strings.TrimPrefix(signature, "0x"), nil
}
