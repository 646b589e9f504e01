package resilience

import (
	"errors"
	"testing"
)

func TestEscalator_TripsAtThreshold(t *testing.T) {
	e := NewEscalator("stt", 3)

	if err := e.Failure(); err != nil {
		t.Fatalf("failure 1: %v", err)
	}
	if err := e.Failure(); err != nil {
		t.Fatalf("failure 2: %v", err)
	}
	if err := e.Failure(); !errors.Is(err, ErrEscalated) {
		t.Fatalf("failure 3 = %v, want ErrEscalated", err)
	}
	if !e.Tripped() {
		t.Error("Tripped() = false after threshold crossed")
	}
}

func TestEscalator_SuccessResetsRun(t *testing.T) {
	e := NewEscalator("stt", 3)

	e.Failure()
	e.Failure()
	e.Success()
	if e.Consecutive() != 0 {
		t.Fatalf("Consecutive() = %d after success, want 0", e.Consecutive())
	}
	if err := e.Failure(); err != nil {
		t.Errorf("failure after reset = %v, want nil", err)
	}
	if err := e.Failure(); err != nil {
		t.Errorf("second failure after reset = %v, want nil", err)
	}
	if err := e.Failure(); !errors.Is(err, ErrEscalated) {
		t.Errorf("third failure after reset = %v, want ErrEscalated", err)
	}
}

func TestEscalator_NeverRecoversAfterTrip(t *testing.T) {
	e := NewEscalator("stt", 1)

	if err := e.Failure(); !errors.Is(err, ErrEscalated) {
		t.Fatalf("first failure = %v, want ErrEscalated", err)
	}
	e.Success()
	if !e.Tripped() {
		t.Error("success after trip must not recover the escalator")
	}
	if err := e.Failure(); !errors.Is(err, ErrEscalated) {
		t.Errorf("failure after trip = %v, want ErrEscalated", err)
	}
}

func TestEscalator_DefaultThreshold(t *testing.T) {
	e := NewEscalator("stt", 0)

	for i := range 4 {
		if err := e.Failure(); err != nil {
			t.Fatalf("failure %d tripped early: %v", i+1, err)
		}
	}
	if err := e.Failure(); !errors.Is(err, ErrEscalated) {
		t.Errorf("fifth failure = %v, want ErrEscalated", err)
	}
}
