// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package workflow

import (
	"errors"
	"reflect"
	"testing"

	"github.com/skflow/skflow/internal/walletapi"
)

func TestSnapshotDetails(t *testing.T) {
	snap := Snapshot{
		SignerAddress: "0xabc",
		Account:       &walletapi.SmartAccount{AccountAddress: "0xacc"},
	}

	tests := []struct {
		name string
		snap Snapshot
		step Step
		want []string
	}{
		{"signer", snap, StepSignerAddress, []string{"signer:  0xabc"}},
		{"account", snap, StepProvisionAccount, []string{"account: 0xacc"}},
		{"no session yet", snap, StepCreateSession, nil},
		{
			"confirmed",
			Snapshot{Submission: &Submission{CallIDs: []string{"c1"}, TxHash: "0xdead"}},
			StepSignAndSend,
			[]string{"call ids: c1", "tx hash:  0xdead"},
		},
		{
			"poll failed",
			Snapshot{Submission: &Submission{CallIDs: []string{"c1"}, PollErr: errors.New("timed out")}},
			StepSignAndSend,
			[]string{"call ids: c1", "status:   timed out"},
		},
		{
			"nothing to poll",
			Snapshot{Submission: &Submission{}},
			StepSignAndSend,
			[]string{"call ids: ", "status:   submitted, nothing to poll"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Details(tt.step); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Details(%v) = %q, want %q", tt.step, got, tt.want)
			}
		})
	}
}
