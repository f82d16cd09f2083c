// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package walletapi

import (
	"encoding/json"
	"fmt"

	"github.com/skflow/skflow/internal/sessionkey"
)

// SmartAccount is a provisioned smart contract wallet.
type SmartAccount struct {
	AccountAddress string `json:"accountAddress"`
	ID             string `json:"id"`
}

// ProvisionParams is the provision-account request.
type ProvisionParams struct {
	SignerAddress string `json:"signerAddress"`
}

// SignatureRequest is an opaque payload the backend wants signed.
type SignatureRequest struct {
	Type string `json:"type"`
	Data struct {
		Raw string `json:"raw"`
	} `json:"data"`
}

// NewSignatureRequest builds a SignatureRequest of the given type over raw.
func NewSignatureRequest(typ, raw string) SignatureRequest {
	var sr SignatureRequest
	sr.Type = typ
	sr.Data.Raw = raw
	return sr
}

// CreateSessionParams is the create-session request.
type CreateSessionParams struct {
	UserID            string `json:"userId"`
	Account           string `json:"account"`
	ChainID           string `json:"chainId"`
	Expiry            int64  `json:"expiry,omitempty"`
	PermissionType    string `json:"permissionType,omitempty"`
	SessionKeyAddress string `json:"sessionKeyAddress,omitempty"`
}

// Session is a created session that still needs authorization.
type Session struct {
	SessionID        string           `json:"sessionId"`
	SignatureRequest SignatureRequest `json:"signatureRequest"`
	SessionKey       sessionkey.Key   `json:"sessionKey"`
}

// Call is a single call in a user operation.
type Call struct {
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
}

// PrepareCallsParams is the prepare-calls request.
type PrepareCallsParams struct {
	SessionID      string `json:"sessionId"`
	Signature      string `json:"signature"`
	AccountAddress string `json:"accountAddress"`
	ChainID        string `json:"chainId"`
	Calls          []Call `json:"calls"`
}

// PreparedCall is an unsigned user operation plus the hash to sign.
// UserOpRequest is kept as raw JSON so it goes back to the backend byte for byte.
type PreparedCall struct {
	UserOpRequest    json.RawMessage  `json:"userOpRequest"`
	SignatureRequest SignatureRequest `json:"signatureRequest"`
	ChainID          string           `json:"chainId"`
}

// UserOperation is a read-only view of the fields of a user operation.
type UserOperation struct {
	Sender               string `json:"sender"`
	Nonce                string `json:"nonce"`
	InitCode             string `json:"initCode"`
	CallData             string `json:"callData"`
	CallGasLimit         string `json:"callGasLimit"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	PreVerificationGas   string `json:"preVerificationGas"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	PaymasterAndData     string `json:"paymasterAndData"`
	Signature            string `json:"signature"`
}

// UserOperation decodes the user operation for display.
func (p *PreparedCall) UserOperation() (*UserOperation, error) {
	var op UserOperation
	if err := json.Unmarshal(p.UserOpRequest, &op); err != nil {
		return nil, fmt.Errorf("failed to decode userOpRequest: %w", err)
	}
	return &op, nil
}

// SendCallsParams is the send-calls request.
type SendCallsParams struct {
	SessionID       string          `json:"sessionId"`
	Signature       string          `json:"signature"`
	UserOpSignature string          `json:"userOpSignature"`
	UserOpRequest   json.RawMessage `json:"userOpRequest"`
	ChainID         string          `json:"chainId"`
}

// Call status codes reported by the status endpoint.
const (
	StatusCompleted = 200
)

// IsFailureStatus reports whether code is a terminal failure.
func IsFailureStatus(code int) bool {
	return code == 400 || code == 500 || code == 600
}

// Receipt is one receipt of a call batch. Backends disagree on the hash field name.
type Receipt map[string]any

// TxHash returns the first non-empty of transactionHash, hash and id.
func (r Receipt) TxHash() string {
	for _, field := range []string{"transactionHash", "hash", "id"} {
		if s, ok := r[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// CallStatus is the status of a submitted call batch.
type CallStatus struct {
	Status   int       `json:"status"`
	Receipts []Receipt `json:"receipts"`
}

// callStatusParams is the poll-status request.
type callStatusParams struct {
	CallID string `json:"callId"`
}
