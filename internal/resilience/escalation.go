// Package resilience provides failure accounting primitives for recognition
// calls.
//
// The central type is [Escalator], a consecutive-failure tracker: isolated
// failures are absorbed by the caller (recorded as transcript gaps), but a run
// of failures past a threshold trips the escalator permanently, signalling
// that the whole session should fail rather than silently produce an empty
// transcript.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrEscalated is returned by [Escalator.Failure] once the consecutive-failure
// threshold has been crossed. The escalator never recovers after tripping.
var ErrEscalated = errors.New("consecutive failure threshold exceeded")

// Escalator counts consecutive failures and trips once they reach a threshold.
// A success resets the counter unless the escalator has already tripped.
type Escalator struct {
	name      string
	threshold int

	mu          sync.Mutex
	consecutive int
	tripped     bool
}

// NewEscalator creates an [Escalator] that trips after threshold consecutive
// failures. A non-positive threshold defaults to 5. The name appears in log
// messages only.
func NewEscalator(name string, threshold int) *Escalator {
	if threshold <= 0 {
		threshold = 5
	}
	return &Escalator{name: name, threshold: threshold}
}

// Failure records one failed call. It returns nil while the failure run is
// still below the threshold and [ErrEscalated] once the threshold is reached.
// After tripping, every subsequent call returns ErrEscalated.
func (e *Escalator) Failure() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tripped {
		return ErrEscalated
	}
	e.consecutive++
	if e.consecutive >= e.threshold {
		e.tripped = true
		slog.Warn("failure escalation tripped",
			"name", e.name,
			"consecutive_failures", e.consecutive)
		return ErrEscalated
	}
	slog.Debug("failure recorded",
		"name", e.name,
		"consecutive_failures", e.consecutive,
		"threshold", e.threshold)
	return nil
}

// Success records one successful call, resetting the consecutive-failure
// counter. It has no effect once the escalator has tripped.
func (e *Escalator) Success() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tripped {
		return
	}
	e.consecutive = 0
}

// Tripped reports whether the threshold has been crossed.
func (e *Escalator) Tripped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tripped
}

// Consecutive returns the current length of the failure run.
func (e *Escalator) Consecutive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutive
}
