package session

import (
	"testing"
	"time"
)

func TestReconnectorStep(t *testing.T) {
	t0 := time.Unix(0, 0)
	at := func(d time.Duration) time.Time { return t0.Add(d) }

	type step struct {
		at          time.Duration
		connected   bool
		wantStatus  ReconnectStatus
		wantAttempt bool
	}

	tests := []struct {
		name  string
		auto  bool
		steps []step
	}{
		{
			name: "auto/retries_every_pending_window",
			auto: true,
			steps: []step{
				{at: time.Second, wantStatus: Waiting},
				{at: 2 * time.Second, wantStatus: Pending, wantAttempt: true},
				{at: 3 * time.Second, wantStatus: Pending},
				{at: 5 * time.Second, wantStatus: Pending},
				{at: 6 * time.Second, wantStatus: Pending, wantAttempt: true},
				{at: 7 * time.Second, connected: true, wantStatus: Connected},
			},
		},
		{
			name: "manual/error_after_grace",
			auto: false,
			steps: []step{
				{at: time.Second, wantStatus: Waiting},
				{at: 2 * time.Second, wantStatus: Error},
				{at: 30 * time.Second, wantStatus: Error},
			},
		},
		{
			name: "connected_during_grace",
			auto: true,
			steps: []step{
				{at: 500 * time.Millisecond, connected: true, wantStatus: Connected},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultReconnectPolicy()
			p.Auto = tt.auto
			r := newReconnector(p, t0)

			for _, s := range tt.steps {
				status, attempt := r.step(at(s.at), s.connected)
				if status != s.wantStatus || attempt != s.wantAttempt {
					t.Errorf("at %v: step = (%v, %v), want (%v, %v)",
						s.at, status, attempt, s.wantStatus, s.wantAttempt)
				}
			}
		})
	}
}

func TestManualAttemptStartsCooldown(t *testing.T) {
	t0 := time.Unix(0, 0)
	p := DefaultReconnectPolicy()
	p.Auto = true
	r := newReconnector(p, t0)

	r.attempted(t0.Add(3 * time.Second))
	if _, attempt := r.step(t0.Add(4*time.Second), false); attempt {
		t.Error("auto attempt fired inside the pending window of a manual retry")
	}
	if _, attempt := r.step(t0.Add(7*time.Second), false); !attempt {
		t.Error("auto attempt did not fire after the pending window")
	}
}

func TestRestartReopensGrace(t *testing.T) {
	t0 := time.Unix(0, 0)
	p := DefaultReconnectPolicy()
	p.Auto = false
	r := newReconnector(p, t0)

	if s, _ := r.step(t0.Add(10*time.Second), false); s != Error {
		t.Fatalf("status = %v, want error", s)
	}
	r.restart(t0.Add(10 * time.Second))
	if s, _ := r.step(t0.Add(11*time.Second), false); s != Waiting {
		t.Errorf("status after restart = %v, want waiting", s)
	}
}

func TestDefaultPolicyWaitsForOperator(t *testing.T) {
	t0 := time.Unix(0, 0)
	p := DefaultReconnectPolicy()
	if p.Auto {
		t.Fatal("automatic retry is on by default")
	}
	r := newReconnector(p, t0)

	for _, at := range []time.Duration{time.Second, 5 * time.Second, time.Minute} {
		status, attempt := r.step(t0.Add(at), false)
		if attempt {
			t.Errorf("at %v: automatic attempt without auto retry", at)
		}
		if at > p.Grace && status != Error {
			t.Errorf("at %v: status = %v, want error", at, status)
		}
	}
}
