// Package consent converts user prompt responses into session consent
// decisions.
//
// The Prompter capability hides how the question reaches the user (a
// localhost WebSocket to the tray UI in production, a fake in tests); the
// Controller enforces the policy: exactly one prompt per session, a bounded
// wait, and a timeout that always means Disabled, never a silent opt-in.
package consent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quillscribe/quill/pkg/types"
)

// Request describes the session the user is being asked about.
type Request struct {
	SessionID string
	Platform  types.Platform
	Handle    types.Handle
}

// Prompter is the capability that shows the accept/disable choice to the
// user. Show blocks until the user answers or ctx is done. It must support an
// explicit "disable for this session" response distinct from dismissal.
type Prompter interface {
	Show(ctx context.Context, req Request) (types.ConsentDecision, error)
}

// ErrAlreadyPrompted is returned when a session is prompted a second time.
// Re-prompting is forbidden: one session, one consent event.
var ErrAlreadyPrompted = errors.New("consent: session already prompted")

// Controller dispatches consent prompts and converts the outcome into a
// decision. It blocks only the calling session's state-machine edge, never
// the rest of the system.
type Controller struct {
	prompter Prompter
	timeout  time.Duration

	mu       sync.Mutex
	prompted map[string]struct{}
}

// NewController builds a Controller. timeout bounds each prompt wait; zero or
// negative falls back to 30 seconds.
func NewController(p Prompter, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Controller{
		prompter: p,
		timeout:  timeout,
		prompted: make(map[string]struct{}),
	}
}

// Decide shows the prompt for req and returns the decision.
//
// A timeout yields ConsentTimedOut, which callers treat exactly like
// Disabled: consent must be explicit. A prompter error also disables, the
// user just never answered. Calling Decide twice for the same session id
// returns ErrAlreadyPrompted.
func (c *Controller) Decide(ctx context.Context, req Request) (types.ConsentDecision, error) {
	c.mu.Lock()
	if _, dup := c.prompted[req.SessionID]; dup {
		c.mu.Unlock()
		return types.ConsentDisabled, fmt.Errorf("%w: %s", ErrAlreadyPrompted, req.SessionID)
	}
	c.prompted[req.SessionID] = struct{}{}
	c.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	decision, err := c.prompter.Show(pctx, req)
	switch {
	case err == nil && decision == types.ConsentAccepted:
		return types.ConsentAccepted, nil
	case err == nil && decision == types.ConsentDisabled:
		return types.ConsentDisabled, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded):
		return types.ConsentTimedOut, nil
	case err != nil:
		return types.ConsentDisabled, fmt.Errorf("consent: prompt failed: %w", err)
	default:
		// A prompter returning anything else is a programming error;
		// fail closed.
		return types.ConsentDisabled, fmt.Errorf("consent: unexpected decision %q", decision)
	}
}
