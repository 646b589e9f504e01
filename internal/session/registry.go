package session

import (
	"errors"
	"sync"

	"github.com/quillscribe/quill/pkg/types"
)

// ErrHandleBusy is returned by Create when the handle already has a
// non-terminal session. Re-detection of a live handle is a no-op.
var ErrHandleBusy = errors.New("session: handle already has a non-terminal session")

// ErrNoRetry is returned by TakeRetry when the session is unknown or its
// single permitted retry was already consumed.
var ErrNoRetry = errors.New("session: no retry available")

// Registry is the single source of truth for live sessions. It serializes
// create/evict and enforces at-most-one non-terminal session per handle.
// Abandoned sessions are retained, keyed by id, for one operator-triggered
// artifact-write retry before final eviction.
type Registry struct {
	mu       sync.Mutex
	live     map[types.Handle]*Session
	retained map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		live:     make(map[types.Handle]*Session),
		retained: make(map[string]*Session),
	}
}

// Create makes a new session for handle in StateDetected. When the handle
// already has a non-terminal session, it returns that session and
// ErrHandleBusy so detection stays idempotent.
func (r *Registry) Create(platform types.Platform, handle types.Handle, profile types.ResourceProfile) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.live[handle]; ok && !existing.State().Terminal() {
		return existing, ErrHandleBusy
	}
	s := New(platform, handle, profile)
	r.live[handle] = s
	return s, nil
}

// Get returns the live session for handle, if any.
func (r *Registry) Get(handle types.Handle) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live[handle]
	return s, ok
}

// Evict removes s from the live set. The handle slot is only cleared when it
// still points at s; a successor session created for the same handle after s
// went terminal is left untouched. Abandoned sessions are moved to the
// retained set instead of being dropped, so the operator retains one retry.
func (r *Registry) Evict(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.live[s.Handle]; ok && cur == s {
		delete(r.live, s.Handle)
	}
	if s.State() == StateAbandoned {
		r.retained[s.ID] = s
	}
}

// TakeRetry hands out an abandoned session for its single permitted
// artifact-write retry and drops it from the retained set. Subsequent calls
// for the same id return ErrNoRetry.
func (r *Registry) TakeRetry(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.retained[id]
	if !ok {
		return nil, ErrNoRetry
	}
	delete(r.retained, id)
	if !s.markRetried() {
		return nil, ErrNoRetry
	}
	return s, nil
}

// Live returns a snapshot of all non-terminal sessions.
func (r *Registry) Live() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.live))
	for _, s := range r.live {
		if !s.State().Terminal() {
			out = append(out, s)
		}
	}
	return out
}

// Retained returns a snapshot of sessions awaiting an operator retry.
func (r *Registry) Retained() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.retained))
	for _, s := range r.retained {
		out = append(out, s)
	}
	return out
}
