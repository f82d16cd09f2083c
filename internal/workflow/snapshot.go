// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package workflow

import (
	"strings"

	"github.com/skflow/skflow/internal/authz"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/walletapi"
)

// StepState is the display state of one step.
type StepState struct {
	Step       Step
	Name       string
	Completed  bool
	Collapsed  bool
	Accessible bool
	Runnable   bool
	Running    bool
	Error      string
}

// Snapshot is a copy of the orchestrator state. Session key private keys are
// never included.
type Snapshot struct {
	Settings    Settings
	Current     Step
	Running     Step
	Polling     bool
	PollAttempt int
	Steps       []StepState

	SignerAddress string
	Account       *walletapi.SmartAccount
	Session       *walletapi.Session
	Authorization *authz.Authorization
	Prepared      *walletapi.PreparedCall
	Submission    *Submission
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	current := o.currentStepLocked()
	snap := Snapshot{
		Settings:      o.settings,
		Current:       current,
		Running:       o.running,
		Polling:       o.polling,
		PollAttempt:   o.pollAttempt,
		SignerAddress: o.signerAddress,
	}
	for _, s := range Steps {
		snap.Steps = append(snap.Steps, StepState{
			Step:       s,
			Name:       s.String(),
			Completed:  o.completed[s],
			Collapsed:  o.collapsed[s],
			Accessible: s <= current,
			Runnable:   o.canRunLocked(s),
			Running:    o.running == s,
			Error:      o.errs[s],
		})
	}

	if o.account != nil {
		acct := *o.account
		snap.Account = &acct
	}
	if o.session != nil {
		session := *o.session
		session.SessionKey.PrivateKey = ""
		snap.Session = &session
	}
	if o.authorization != nil {
		auth := *o.authorization
		snap.Authorization = &auth
	}
	if o.prepared != nil {
		prepared := *o.prepared
		snap.Prepared = &prepared
	}
	if o.submission != nil {
		sub := *o.submission
		sub.CallIDs = append([]string(nil), o.submission.CallIDs...)
		snap.Submission = &sub
	}
	return snap
}

// StepState returns the display state of n.
func (s Snapshot) StepState(n Step) (StepState, bool) {
	for _, st := range s.Steps {
		if st.Step == n {
			return st, true
		}
	}
	return StepState{}, false
}

// Details returns the output lines shown under an expanded step.
func (s Snapshot) Details(n Step) []string {
	switch n {
	case StepSignerAddress:
		if s.SignerAddress != "" {
			return []string{"signer:  " + s.SignerAddress}
		}
	case StepProvisionAccount:
		if s.Account != nil {
			return []string{"account: " + s.Account.AccountAddress}
		}
	case StepCreateSession:
		if s.Session != nil {
			return []string{
				"session: " + s.Session.SessionID,
				"key:     " + s.Session.SessionKey.Address,
			}
		}
	case StepAuthorizeSession:
		if s.Authorization != nil {
			return []string{"authorization: " + util.ShortHex(s.Authorization.Authorization)}
		}
	case StepPrepareCalls:
		if s.Prepared != nil {
			lines := []string{"hash:    " + s.Prepared.SignatureRequest.Data.Raw}
			if op, err := s.Prepared.UserOperation(); err == nil {
				lines = append(lines, "sender:  "+op.Sender, "nonce:   "+op.Nonce)
			}
			return lines
		}
	case StepSignAndSend:
		sub := s.Submission
		if sub == nil {
			return nil
		}
		lines := []string{"call ids: " + strings.Join(sub.CallIDs, ", ")}
		switch {
		case sub.TxHash != "":
			lines = append(lines, "tx hash:  "+sub.TxHash)
		case sub.PollErr != nil:
			lines = append(lines, "status:   "+sub.PollErr.Error())
		case len(sub.CallIDs) == 0:
			lines = append(lines, "status:   submitted, nothing to poll")
		}
		return lines
	}
	return nil
}
