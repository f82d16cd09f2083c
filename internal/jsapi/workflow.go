// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package jsapi

import (
	"github.com/dop251/goja"

	"github.com/skflow/skflow/internal/walletapi"
	"github.com/skflow/skflow/internal/workflow"
)

// runStep runs s and turns a refusal or failure into a JS exception.
func (a *API) runStep(s workflow.Step) {
	ran, err := a.deps.Flow.Run(a.ctx, s)
	if !ran {
		a.throw("%s cannot run now (current step is %s)", s, a.deps.Flow.CurrentStep())
	}
	if err != nil {
		a.throw("%s failed: %v", s, err)
	}
}

// jsCurrentStep returns the current step number (7 when done).
func (a *API) jsCurrentStep(call goja.FunctionCall) goja.Value {
	return a.runtime.ToValue(int(a.deps.Flow.CurrentStep()))
}

// jsCanRun reports whether a step would run.
// canRun(step) -> boolean
func (a *API) jsCanRun(call goja.FunctionCall) goja.Value {
	a.requireArgs(call, 1, "canRun() requires a step")
	return a.runtime.ToValue(a.deps.Flow.CanRun(a.toStep(call.Arguments[0])))
}

// jsRun runs a step by number or name without throwing on a refusal.
// run(step) -> { ran, error }
func (a *API) jsRun(call goja.FunctionCall) goja.Value {
	a.requireArgs(call, 1, "run() requires a step")
	ran, err := a.deps.Flow.Run(a.ctx, a.toStep(call.Arguments[0]))
	result := map[string]any{"ran": ran, "error": nil}
	if err != nil {
		result["error"] = err.Error()
	}
	return a.runtime.ToValue(result)
}

// jsSignerAddress runs step 1 and returns the signer address.
func (a *API) jsSignerAddress(call goja.FunctionCall) goja.Value {
	a.runStep(workflow.StepSignerAddress)
	return a.runtime.ToValue(a.deps.Flow.Snapshot().SignerAddress)
}

// jsProvision runs step 2 and returns { accountAddress, id }.
func (a *API) jsProvision(call goja.FunctionCall) goja.Value {
	a.runStep(workflow.StepProvisionAccount)
	acct := a.deps.Flow.Snapshot().Account
	return a.runtime.ToValue(map[string]any{"accountAddress": acct.AccountAddress, "id": acct.ID})
}

// jsCreateSession runs step 3, optionally selecting permission and duration first.
// createSession([permissionType], [sessionTime]) -> { sessionId, sessionKey }
func (a *API) jsCreateSession(call goja.FunctionCall) goja.Value {
	if p := optString(call, 0); p != "" {
		if err := a.deps.Flow.SetPermissionType(p); err != nil {
			a.throw("createSession() %v", err)
		}
	}
	if d := optString(call, 1); d != "" {
		if err := a.deps.Flow.SetSessionTime(d); err != nil {
			a.throw("createSession() %v", err)
		}
	}
	a.runStep(workflow.StepCreateSession)
	session := a.deps.Flow.Snapshot().Session
	return a.runtime.ToValue(map[string]any{
		"sessionId":  session.SessionID,
		"sessionKey": session.SessionKey.Address,
	})
}

// jsAuthorize runs step 4 and returns { sessionId, signature, authorization }.
func (a *API) jsAuthorize(call goja.FunctionCall) goja.Value {
	a.runStep(workflow.StepAuthorizeSession)
	auth := a.deps.Flow.Snapshot().Authorization
	return a.runtime.ToValue(map[string]any{
		"sessionId":     auth.SessionID,
		"signature":     auth.Signature,
		"authorization": auth.Authorization,
	})
}

// jsPrepare runs step 5, optionally replacing the call first.
// prepare([to], [value], [data]) -> { hash, chainId, sender, nonce }
func (a *API) jsPrepare(call goja.FunctionCall) goja.Value {
	if to := optString(call, 0); to != "" {
		c := walletapi.Call{To: to, Value: optString(call, 1), Data: optString(call, 2)}
		if c.Data == "" {
			c.Data = "0x"
		}
		a.deps.Flow.SetCall(c)
	}
	a.runStep(workflow.StepPrepareCalls)
	prepared := a.deps.Flow.Snapshot().Prepared
	result := map[string]any{
		"hash":    prepared.SignatureRequest.Data.Raw,
		"chainId": prepared.ChainID,
	}
	if op, err := prepared.UserOperation(); err == nil {
		result["sender"] = op.Sender
		result["nonce"] = op.Nonce
	}
	return a.runtime.ToValue(result)
}

// jsSend runs step 6 and returns the transaction hash. Polling failures throw,
// but the submission stays recorded.
func (a *API) jsSend(call goja.FunctionCall) goja.Value {
	a.runStep(workflow.StepSignAndSend)
	sub := a.deps.Flow.Snapshot().Submission
	if sub == nil || sub.TxHash == "" {
		return goja.Null()
	}
	return a.runtime.ToValue(sub.TxHash)
}

// jsRunAll runs every remaining step in order and returns the transaction hash.
func (a *API) jsRunAll(call goja.FunctionCall) goja.Value {
	for a.deps.Flow.CurrentStep() != workflow.Done {
		a.runStep(a.deps.Flow.CurrentStep())
	}
	sub := a.deps.Flow.Snapshot().Submission
	if sub == nil || sub.TxHash == "" {
		return goja.Null()
	}
	return a.runtime.ToValue(sub.TxHash)
}

// jsSetPermission selects the permission type for the next session.
func (a *API) jsSetPermission(call goja.FunctionCall) goja.Value {
	a.requireArgs(call, 1, "setPermission() requires a permission type")
	if err := a.deps.Flow.SetPermissionType(call.Arguments[0].String()); err != nil {
		a.throw("setPermission() %v", err)
	}
	return goja.Undefined()
}

// jsSetSessionTime selects the duration of the next session.
func (a *API) jsSetSessionTime(call goja.FunctionCall) goja.Value {
	a.requireArgs(call, 1, "setSessionTime() requires a duration")
	if err := a.deps.Flow.SetSessionTime(call.Arguments[0].String()); err != nil {
		a.throw("setSessionTime() %v", err)
	}
	return goja.Undefined()
}

// jsSetCall selects the call prepared by prepare-calls.
// setCall(to, [value], [data])
func (a *API) jsSetCall(call goja.FunctionCall) goja.Value {
	a.requireArgs(call, 1, "setCall() requires a target address")
	c := walletapi.Call{To: call.Arguments[0].String(), Value: optString(call, 1), Data: optString(call, 2)}
	if c.Data == "" {
		c.Data = "0x"
	}
	a.deps.Flow.SetCall(c)
	return goja.Undefined()
}

// jsToggle flips the collapse state of a completed step.
func (a *API) jsToggle(call goja.FunctionCall) goja.Value {
	a.requireArgs(call, 1, "toggle() requires a step")
	return a.runtime.ToValue(a.deps.Flow.ToggleCollapse(a.toStep(call.Arguments[0])))
}

// jsReset discards all outputs.
func (a *API) jsReset(call goja.FunctionCall) goja.Value {
	return a.runtime.ToValue(a.deps.Flow.Reset())
}

// jsSnapshot returns the workflow state as a plain object.
func (a *API) jsSnapshot(call goja.FunctionCall) goja.Value {
	snap := a.deps.Flow.Snapshot()

	steps := make([]any, 0, len(snap.Steps))
	for _, st := range snap.Steps {
		steps = append(steps, map[string]any{
			"step":       int(st.Step),
			"name":       st.Name,
			"completed":  st.Completed,
			"collapsed":  st.Collapsed,
			"accessible": st.Accessible,
			"runnable":   st.Runnable,
			"running":    st.Running,
			"error":      st.Error,
		})
	}

	out := map[string]any{
		"current":       int(snap.Current),
		"signerAddress": snap.SignerAddress,
		"steps":         steps,
	}
	if snap.Account != nil {
		out["accountAddress"] = snap.Account.AccountAddress
	}
	if snap.Session != nil {
		out["sessionId"] = snap.Session.SessionID
		out["sessionKey"] = snap.Session.SessionKey.Address
	}
	if snap.Authorization != nil {
		out["authorization"] = snap.Authorization.Authorization
	}
	if snap.Prepared != nil {
		out["hash"] = snap.Prepared.SignatureRequest.Data.Raw
	}
	if sub := snap.Submission; sub != nil {
		out["callIds"] = sub.CallIDs
		out["txHash"] = sub.TxHash
		if sub.PollErr != nil {
			out["pollError"] = sub.PollErr.Error()
		}
	}
	return a.runtime.ToValue(out)
}
