// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package workflow

import (
	"context"
	"fmt"

	"github.com/skflow/skflow/internal/sessionkey"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/walletapi"
)

func (o *Orchestrator) runSignerAddress(ctx context.Context) error {
	o.mu.Lock()
	s := o.signer
	o.mu.Unlock()

	addr, err := s.Address(ctx)
	if err != nil {
		return stepFailure(StepSignerAddress, fmt.Errorf("failed to get signer address: %w", err))
	}
	o.complete(StepSignerAddress, func() { o.signerAddress = addr })
	return nil
}

func (o *Orchestrator) runProvisionAccount(ctx context.Context) error {
	o.mu.Lock()
	params := walletapi.ProvisionParams{SignerAddress: o.signerAddress}
	o.mu.Unlock()

	acct, err := o.provision.Invoke(ctx, params)
	if err != nil {
		return &StepError{Step: StepProvisionAccount, Message: o.provision.Error(), Err: err}
	}
	o.complete(StepProvisionAccount, func() { o.account = acct })
	return nil
}

func (o *Orchestrator) runCreateSession(ctx context.Context) error {
	o.mu.Lock()
	settings := o.settings
	account := o.account.AccountAddress
	o.mu.Unlock()

	seconds, err := util.SessionSeconds(settings.SessionTime)
	if err != nil {
		return stepFailure(StepCreateSession, err)
	}

	// One key per attempt; a failed attempt's key is never reused.
	local, err := o.generateKey()
	if err != nil {
		return stepFailure(StepCreateSession, err)
	}

	params := walletapi.CreateSessionParams{
		UserID:            settings.UserID,
		Account:           account,
		ChainID:           settings.ChainID,
		Expiry:            o.now().Unix() + seconds,
		PermissionType:    settings.PermissionType,
		SessionKeyAddress: local.Address,
	}
	session, err := o.createSession.Invoke(ctx, params)
	if err != nil {
		return &StepError{Step: StepCreateSession, Message: o.createSession.Error(), Err: err}
	}

	key, err := bindSessionKey(session.SessionKey, local)
	if err != nil {
		return stepFailure(StepCreateSession, err)
	}
	bound := *session
	bound.SessionKey = key
	util.Debug("session created", "session_id", bound.SessionID, "session_key", key.Address)

	o.complete(StepCreateSession, func() { o.session = &bound })
	return nil
}

// bindSessionKey reconciles the key the backend reports with the key
// generated for the session. A backend key carrying a private key is used
// as-is once its address checks out. A bare address must equal the local
// key's address.
func bindSessionKey(remote sessionkey.Key, local *sessionkey.Key) (sessionkey.Key, error) {
	if remote.PrivateKey != "" {
		derived, err := sessionkey.AddressOf(remote.PrivateKey)
		if err != nil {
			return sessionkey.Key{}, err
		}
		if remote.Address != "" && !sameAddress(remote.Address, derived) {
			return sessionkey.Key{}, fmt.Errorf("%w: address %s does not belong to the returned private key", ErrSessionKeyMismatch, remote.Address)
		}
		return sessionkey.Key{Address: derived, PrivateKey: remote.PrivateKey}, nil
	}
	if !sameAddress(remote.Address, local.Address) {
		return sessionkey.Key{}, fmt.Errorf("%w: got %s, generated %s", ErrSessionKeyMismatch, remote.Address, local.Address)
	}
	return *local, nil
}

func (o *Orchestrator) runAuthorizeSession(ctx context.Context) error {
	o.mu.Lock()
	authorizer := o.authorizer
	session := *o.session
	o.mu.Unlock()

	auth, err := authorizer.Authorize(ctx, session.SessionID, session.SignatureRequest)
	if err != nil {
		return stepFailure(StepAuthorizeSession, err)
	}
	o.complete(StepAuthorizeSession, func() { o.authorization = auth })
	return nil
}

func (o *Orchestrator) runPrepareCalls(ctx context.Context) error {
	o.mu.Lock()
	params := walletapi.PrepareCallsParams{
		SessionID:      o.authorization.SessionID,
		Signature:      o.authorization.Signature,
		AccountAddress: o.account.AccountAddress,
		ChainID:        o.settings.ChainID,
		Calls:          []walletapi.Call{o.settings.Call},
	}
	o.mu.Unlock()

	prepared, err := o.prepare.Invoke(ctx, params)
	if err != nil {
		return &StepError{Step: StepPrepareCalls, Message: o.prepare.Error(), Err: err}
	}
	o.complete(StepPrepareCalls, func() { o.prepared = prepared })
	return nil
}

// runSignAndSend signs, submits and polls, strictly in that order. The step
// completes once the submission is accepted; the polling outcome is recorded
// on the Submission.
func (o *Orchestrator) runSignAndSend(ctx context.Context) error {
	o.mu.Lock()
	prepared := o.prepared
	auth := *o.authorization
	sessionKey := o.session.SessionKey
	o.mu.Unlock()

	userOpSig, err := sessionkey.SignHash(sessionKey.PrivateKey, prepared.SignatureRequest.Data.Raw)
	if err != nil {
		return stepFailure(StepSignAndSend, fmt.Errorf("failed to sign with session key: %w", err))
	}

	callIDs, err := o.send.Invoke(ctx, walletapi.SendCallsParams{
		SessionID:       auth.SessionID,
		Signature:       auth.Signature,
		UserOpSignature: userOpSig,
		UserOpRequest:   prepared.UserOpRequest,
		ChainID:         prepared.ChainID,
	})
	if err != nil {
		return &StepError{Step: StepSignAndSend, Message: o.send.Error(), Err: err}
	}

	sub := &Submission{UserOpSignature: userOpSig, CallIDs: callIDs}
	if len(callIDs) == 0 {
		util.Logger.Warn("no call ids returned, transaction cannot be tracked")
		o.complete(StepSignAndSend, func() { o.submission = sub })
		return nil
	}

	sub.Polled = callIDs[0]
	o.complete(StepSignAndSend, func() {
		o.submission = sub
		o.polling = true
	})
	o.notify()

	hash, pollErr := o.poller.Poll(ctx, sub.Polled)

	o.mu.Lock()
	updated := *sub
	updated.TxHash = hash
	updated.PollErr = pollErr
	o.submission = &updated
	o.polling = false
	o.mu.Unlock()

	if pollErr != nil {
		return pollErr
	}
	util.Logger.Info("transaction confirmed", "call_id", sub.Polled, "tx_hash", hash)
	return nil
}
