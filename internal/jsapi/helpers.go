// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package jsapi

import (
	"math/big"
	"strings"

	"github.com/dop251/goja"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/skflow/skflow/internal/workflow"
)

var weiPerEther = new(big.Rat).SetInt(big.NewInt(1_000_000_000_000_000_000))

// makeEthFunc creates the eth() helper function bound to a runtime.
// eth(0.01) -> "0x2386f26fc10000"
func makeEthFunc(vm *goja.Runtime) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(vm.ToValue("eth() requires a number argument"))
		}
		amount, ok := new(big.Rat).SetString(call.Arguments[0].String())
		if !ok {
			panic(vm.ToValue("eth() requires a number argument"))
		}
		if amount.Sign() < 0 {
			panic(vm.ToValue("eth() cannot be negative"))
		}
		scaled := new(big.Rat).Mul(amount, weiPerEther)
		// Sub-wei fractions are truncated.
		wei := new(big.Int).Quo(scaled.Num(), scaled.Denom())
		return vm.ToValue(hexutil.EncodeBig(wei))
	}
}

// makeWeiFunc creates the wei() helper function bound to a runtime.
// wei(10000000000000000) -> "0x2386f26fc10000", wei("0x10") -> "0x10"
func makeWeiFunc(vm *goja.Runtime) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(vm.ToValue("wei() requires a number argument"))
		}
		s := call.Arguments[0].String()
		var n *big.Int
		if strings.HasPrefix(s, "0x") {
			v, err := hexutil.DecodeBig(s)
			if err != nil {
				panic(vm.ToValue("wei() invalid hex: " + err.Error()))
			}
			n = v
		} else {
			v, ok := new(big.Int).SetString(s, 10)
			if !ok {
				panic(vm.ToValue("wei() requires an integer"))
			}
			n = v
		}
		if n.Sign() < 0 {
			panic(vm.ToValue("wei() cannot be negative"))
		}
		return vm.ToValue(hexutil.EncodeBig(n))
	}
}

// requireArgs panics with a JS exception if the call has fewer than n arguments.
func (a *API) requireArgs(call goja.FunctionCall, n int, msg string) {
	if len(call.Arguments) < n {
		panic(a.runtime.ToValue(msg))
	}
}

// toStep converts a step number or name to a Step.
func (a *API) toStep(v goja.Value) workflow.Step {
	s, err := workflow.ParseStep(v.String())
	if err != nil {
		panic(a.runtime.ToValue(err.Error()))
	}
	return s
}

// optString returns argument i as a string, or "" if absent or undefined.
func optString(call goja.FunctionCall, i int) string {
	if len(call.Arguments) <= i {
		return ""
	}
	v := call.Arguments[i]
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
