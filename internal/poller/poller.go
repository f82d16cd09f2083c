// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package poller waits for a submitted call batch to settle by querying its
// status at a fixed interval with a fixed attempt budget.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skflow/skflow/internal/metrics"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/walletapi"
)

// Defaults: 30 attempts, one second apart.
const (
	DefaultMaxAttempts = 30
	DefaultInterval    = time.Second
)

var (
	// ErrTransactionFailed matches every *TransactionFailedError.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrPollingTimeout indicates the attempt budget ran out without a terminal status.
	// The outcome of the transaction is unknown.
	ErrPollingTimeout = errors.New("transaction hash not found after maximum polling attempts")

	// ErrEmptyStatus is recorded when the fetcher returns neither a status nor an error.
	ErrEmptyStatus = errors.New("empty call status response")
)

// TransactionFailedError is a confirmed negative outcome.
type TransactionFailedError struct {
	CallID string
	Status int
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction failed with status %d", e.Status)
}

// Is reports ErrTransactionFailed as matching.
func (e *TransactionFailedError) Is(target error) bool {
	return target == ErrTransactionFailed
}

// TimeoutError carries the attempt count and the last transient error, if any.
type TimeoutError struct {
	Attempts int
	LastErr  error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("%s (%d attempts, last error: %v)", ErrPollingTimeout.Error(), e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("%s (%d attempts)", ErrPollingTimeout.Error(), e.Attempts)
}

func (e *TimeoutError) Unwrap() []error {
	if e.LastErr != nil {
		return []error{ErrPollingTimeout, e.LastErr}
	}
	return []error{ErrPollingTimeout}
}

// StatusFetcher queries the status of a call batch.
type StatusFetcher interface {
	CallStatus(ctx context.Context, callID string) (*walletapi.CallStatus, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poller polls a StatusFetcher until a terminal status.
type Poller struct {
	Fetcher     StatusFetcher
	MaxAttempts int
	Interval    time.Duration
	Sleep       SleepFunc
	Metrics     *metrics.Metrics

	// OnAttempt, if set, is called after every attempt with its 1-based number.
	OnAttempt func(attempt int, status *walletapi.CallStatus, err error)
}

// New creates a Poller with the default budget and the wall clock.
func New(fetcher StatusFetcher) *Poller {
	return &Poller{
		Fetcher:     fetcher,
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultInterval,
		Sleep:       Sleep,
	}
}

// Poll returns the transaction hash of callID once the batch completes.
//
// A completed status without an extractable hash keeps polling. A terminal
// failure status returns *TransactionFailedError at once. Fetch errors use up
// an attempt and are retried. When the budget runs out a *TimeoutError is
// returned. Cancelling ctx stops polling between attempts.
func (p *Poller) Poll(ctx context.Context, callID string) (string, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := p.Fetcher.CallStatus(ctx, callID)
		if err == nil && status == nil {
			err = ErrEmptyStatus
		}
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, status, err)
		}

		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			lastErr = err
			p.Metrics.ObservePoll("error")
			util.Debug("poll attempt failed", "call_id", callID, "attempt", attempt, "error", err)

		case status.Status == walletapi.StatusCompleted:
			if hash := firstTxHash(status.Receipts); hash != "" {
				p.Metrics.ObservePoll("completed")
				util.Debug("transaction hash found", "call_id", callID, "attempt", attempt, "tx_hash", hash)
				return hash, nil
			}
			p.Metrics.ObservePoll("pending")
			util.Debug("completed without receipt hash", "call_id", callID, "attempt", attempt)

		case walletapi.IsFailureStatus(status.Status):
			p.Metrics.ObservePoll("failed")
			return "", &TransactionFailedError{CallID: callID, Status: status.Status}

		default:
			p.Metrics.ObservePoll("pending")
			util.Debug("call pending", "call_id", callID, "attempt", attempt, "status", status.Status)
		}

		if attempt < maxAttempts {
			if err := sleep(ctx, p.Interval); err != nil {
				return "", err
			}
		}
	}

	return "", &TimeoutError{Attempts: maxAttempts, LastErr: lastErr}
}

func firstTxHash(receipts []walletapi.Receipt) string {
	for _, r := range receipts {
		if hash := r.TxHash(); hash != "" {
			return hash
		}
	}
	return ""
}
