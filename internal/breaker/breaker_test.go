package breaker_test

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/breaker"
)

func newRegistry(threshold int, cooldown time.Duration) *breaker.Registry {
	return breaker.NewRegistry(threshold, cooldown, zap.NewNop())
}

// Test: circuit opens after threshold consecutive failures and refuses
// attempts.
func TestBreaker_OpensAtThreshold(t *testing.T) {
	r := newRegistry(5, time.Minute)

	for i := 0; i < 4; i++ {
		r.RecordFailure("api.acme.io")
		if !r.CanAttempt("api.acme.io") {
			t.Fatalf("circuit opened early after %d failures", i+1)
		}
	}

	r.RecordFailure("api.acme.io")

	if !r.IsOpen("api.acme.io") {
		t.Error("expected circuit to be open after 5 failures")
	}
	if r.CanAttempt("api.acme.io") {
		t.Error("expected attempts to be refused while open")
	}
}

// Test: success resets the consecutive-failure counter.
func TestBreaker_SuccessResetsCounter(t *testing.T) {
	r := newRegistry(3, time.Minute)

	r.RecordFailure("k")
	r.RecordFailure("k")
	r.RecordSuccess("k")
	r.RecordFailure("k")
	r.RecordFailure("k")

	if r.IsOpen("k") {
		t.Error("counter was not reset by RecordSuccess")
	}
}

// Test: after the cool-down one probe is admitted; its success closes the
// circuit.
func TestBreaker_HalfOpenProbeSuccess(t *testing.T) {
	r := newRegistry(2, 30*time.Millisecond)

	r.RecordFailure("k")
	r.RecordFailure("k")
	if r.CanAttempt("k") {
		t.Fatal("expected open circuit")
	}

	time.Sleep(40 * time.Millisecond)

	if !r.CanAttempt("k") {
		t.Fatal("expected probe to be admitted after cool-down")
	}
	// Second caller is refused while the probe is in flight.
	if r.CanAttempt("k") {
		t.Error("expected only one probe to be admitted")
	}

	r.RecordSuccess("k")
	if !r.CanAttempt("k") {
		t.Error("expected circuit closed after successful probe")
	}
	if r.StateOf("k") != breaker.StateClosed {
		t.Errorf("expected CLOSED, got %s", r.StateOf("k"))
	}
}

// Test: a failed probe re-opens the circuit and restarts the cool-down.
func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	r := newRegistry(2, 30*time.Millisecond)

	r.RecordFailure("k")
	r.RecordFailure("k")
	time.Sleep(40 * time.Millisecond)

	if !r.CanAttempt("k") {
		t.Fatal("expected probe to be admitted")
	}
	r.RecordFailure("k")

	if !r.IsOpen("k") {
		t.Error("expected circuit re-opened after failed probe")
	}
	if r.CanAttempt("k") {
		t.Error("expected attempts refused during restarted cool-down")
	}
}

// Test: keys are independent.
func TestBreaker_PerKeyIsolation(t *testing.T) {
	r := newRegistry(2, time.Minute)

	r.RecordFailure("bad.io")
	r.RecordFailure("bad.io")

	if !r.CanAttempt("good.io") {
		t.Error("unrelated key was blocked")
	}
	if r.CanAttempt("bad.io") {
		t.Error("failing key was not blocked")
	}
}

func TestBreaker_Reset(t *testing.T) {
	r := newRegistry(1, time.Minute)

	r.RecordFailure("k")
	if r.CanAttempt("k") {
		t.Fatal("expected open circuit")
	}

	r.Reset("k")
	if !r.CanAttempt("k") {
		t.Error("expected attempts allowed after Reset")
	}
}
