// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("prepare-calls", "ok", time.Second)
	m.ObserveStep("prepare-calls", "ok")
	m.ObservePoll("pending")
	lines, err := m.Summary()
	if err != nil || lines != nil {
		t.Errorf("Summary() = %v, %v; want nil, nil", lines, err)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveRequest("send-calls", "ok", 10*time.Millisecond)
	m.ObserveRequest("send-calls", "error", 10*time.Millisecond)
	m.ObserveStep("sign-and-send", "ok")
	m.ObservePoll("pending")
	m.ObservePoll("pending")

	if got := testutil.ToFloat64(m.pollAttempts.WithLabelValues("pending")); got != 2 {
		t.Errorf("pending polls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("send-calls", "error")); got != 1 {
		t.Errorf("send-calls errors = %v, want 1", got)
	}

	lines, err := m.Summary()
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	joined := strings.Join(lines, "\n")
	for _, want := range []string{
		"skflow_poll_attempts_total{state=pending} 2",
		"skflow_step_runs_total{outcome=ok,step=sign-and-send} 1",
		"skflow_api_request_seconds{endpoint=send-calls} count=2",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("Summary() missing %q in:\n%s", want, joined)
		}
	}
}
