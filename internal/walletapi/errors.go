// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package walletapi

import "errors"

// Remote call errors
var (
	// ErrRemote matches every *APIError.
	ErrRemote = errors.New("wallet API request failed")
)

// Response shape errors
var (
	// ErrMissingSignatureRequest indicates session creation returned no signature request.
	ErrMissingSignatureRequest = errors.New("no signatureRequest found in session creation response")

	// ErrMissingSessionKey indicates session creation returned no session key.
	ErrMissingSessionKey = errors.New("no session key returned from backend")

	// ErrMissingField indicates any other required response field is absent.
	ErrMissingField = errors.New("missing field in response")
)

// APIError is a non-success response or transport failure from one endpoint.
type APIError struct {
	Endpoint string
	Status   int // 0 for transport failures
	Message  string
	Err      error // underlying transport error, if any
}

// Error returns the normalized message only, so it can be shown to users as is.
func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports ErrRemote as matching any APIError.
func (e *APIError) Is(target error) bool {
	return target == ErrRemote
}
