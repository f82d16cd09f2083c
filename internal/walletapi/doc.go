// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package walletapi is the HTTP client for the wallet backend that provisions
// smart accounts, creates sessions, prepares user operations and relays them.
//
// Every endpoint is a JSON POST. Non-2xx responses and transport failures are
// reported as *APIError carrying one human-readable message. Response shapes
// that lack a required field are reported with the sentinel errors in errors.go.
//
// The send-calls response shape is not stable across backend versions;
// NormalizeCallIDs documents the order in which candidate fields are tried.
package walletapi
