// Package session owns the meeting-session entity, its lifecycle state
// machine, and the registry that enforces at-most-one non-terminal session
// per detected handle.
//
// All exported types are safe for concurrent use.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quillscribe/quill/pkg/types"
)

// State is a lifecycle state of a meeting session.
type State string

const (
	StateDetected   State = "detected"
	StatePrompted   State = "prompted"
	StateActive     State = "active"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateDisabled   State = "disabled"
	StateAbandoned  State = "abandoned"
)

// Terminal reports whether s is a terminal state. A session transitions to a
// terminal state exactly once and is never mutated afterwards.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDisabled || s == StateAbandoned
}

// transitions is the allowed state graph. Detected → Disabled covers both a
// declined/timed-out consent that never got prompted (shutdown race) and the
// normal Prompted → Disabled edge.
var transitions = map[State][]State{
	StateDetected:   {StatePrompted, StateDisabled},
	StatePrompted:   {StateActive, StateDisabled},
	StateActive:     {StateFinalizing},
	StateFinalizing: {StateCompleted, StateAbandoned},
}

// Errors returned by session mutations.
var (
	ErrInvalidTransition = errors.New("session: invalid state transition")
	ErrTerminal          = errors.New("session: session is terminal")
	ErrTranscriptClosed  = errors.New("session: transcript is closed")
	ErrSummarySet        = errors.New("session: summary already set")
	ErrTranscriptOpen    = errors.New("session: transcript still open")
)

// OutputPaths holds the resolved artifact file paths for a session.
type OutputPaths struct {
	Transcript string
	Summary    string
}

// Session is one detected-to-completed meeting lifecycle instance, bound to a
// single source handle.
type Session struct {
	ID       string
	Platform types.Platform
	Handle   types.Handle

	mu               sync.Mutex
	state            State
	consent          types.ConsentDecision
	startedAt        time.Time
	endedAt          time.Time
	transcript       []types.Segment
	transcriptClosed bool
	summary          *types.Summary
	summarySkipped   bool
	summaryErr       error
	profile          types.ResourceProfile
	outputs          OutputPaths
	failed           bool
	failure          error
	retried          bool
}

// New creates a session in StateDetected. The id embeds the platform and the
// start timestamp so artifact filenames derived from it cannot collide across
// concurrent sessions.
func New(platform types.Platform, handle types.Handle, profile types.ResourceProfile) *Session {
	now := time.Now().UTC()
	id := fmt.Sprintf("quill-%s-%s-%s",
		platform,
		now.Format("20060102T1504Z"),
		strings.Split(uuid.NewString(), "-")[0],
	)
	if !profile.Valid() {
		profile = types.ProfileTiny
	}
	return &Session{
		ID:        id,
		Platform:  platform,
		Handle:    handle,
		state:     StateDetected,
		consent:   types.ConsentPending,
		startedAt: now,
		profile:   profile,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to the given state, validating the edge
// against the lifecycle table. A terminal session rejects every transition.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, s.state)
	}
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			if to.Terminal() {
				s.endedAt = time.Now().UTC()
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.state, to)
}

// SetConsent records the consent decision. It does not change state; the
// caller drives the matching transition.
func (s *Session) SetConsent(d types.ConsentDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consent = d
}

// Consent returns the recorded consent decision.
func (s *Session) Consent() types.ConsentDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consent
}

// Append adds one transcript segment, assigning the next contiguous sequence
// number. Gap segments carry empty text; they keep numbering contiguous when
// audio was dropped or a window failed.
func (s *Session) Append(startMs, endMs int64, text string, confidence float64, source types.AudioSource) (types.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return types.Segment{}, fmt.Errorf("%w: %s", ErrTerminal, s.state)
	}
	if s.transcriptClosed {
		return types.Segment{}, ErrTranscriptClosed
	}
	seg := types.Segment{
		SequenceNumber: len(s.transcript),
		StartOffsetMs:  startMs,
		EndOffsetMs:    endMs,
		Text:           text,
		Confidence:     confidence,
		Source:         source,
	}
	s.transcript = append(s.transcript, seg)
	return seg, nil
}

// CloseTranscript forbids further appends. Called by the pipeline after the
// finalize drain; summarization only runs against a closed transcript.
func (s *Session) CloseTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcriptClosed = true
}

// TranscriptClosed reports whether the transcript accepts further segments.
func (s *Session) TranscriptClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptClosed
}

// Transcript returns a copy of the segments appended so far, in sequence
// order.
func (s *Session) Transcript() []types.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Segment(nil), s.transcript...)
}

// TranscriptText returns the concatenated non-empty segment texts.
func (s *Session) TranscriptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sb strings.Builder
	for _, seg := range s.transcript {
		if seg.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// SetSummary stores the summary artifact. It may be called at most once, and
// only after the transcript has been closed.
func (s *Session) SetSummary(sum *types.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transcriptClosed {
		return ErrTranscriptOpen
	}
	if s.summary != nil {
		return ErrSummarySet
	}
	s.summary = sum
	return nil
}

// Summary returns the stored summary, or nil when none was produced.
func (s *Session) Summary() *types.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// MarkSummarySkipped records that summarization was skipped (transcript too
// short). Not an error; the session completes transcript-only.
func (s *Session) MarkSummarySkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summarySkipped = true
}

// SummarySkipped reports whether summarization was skipped.
func (s *Session) SummarySkipped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summarySkipped
}

// SetSummaryErr records a non-fatal summarization failure for reporting.
func (s *Session) SetSummaryErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaryErr = err
}

// SummaryErr returns the recorded summarization failure, if any.
func (s *Session) SummaryErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryErr
}

// SetProfile records the resource profile active for future windows.
func (s *Session) SetProfile(p types.ResourceProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Valid() {
		s.profile = p
	}
}

// Profile returns the currently selected resource profile.
func (s *Session) Profile() types.ResourceProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// SetOutputs records the resolved artifact paths.
func (s *Session) SetOutputs(p OutputPaths) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = p
}

// Outputs returns the resolved artifact paths.
func (s *Session) Outputs() OutputPaths {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs
}

// MarkFailed sets the session error flag. The partial transcript is retained;
// the flag only records that the session ended by failure rather than by a
// normal stop.
func (s *Session) MarkFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
	if s.failure == nil {
		s.failure = err
	}
}

// Failed reports whether the error flag is set, with the first cause.
func (s *Session) Failed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed, s.failure
}

// StartedAt returns the session creation time.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// EndedAt returns the time the session reached a terminal state, or the zero
// time while non-terminal.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// markRetried flags the single permitted artifact-write retry as consumed.
// Returns false when the retry was already used.
func (s *Session) markRetried() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retried {
		return false
	}
	s.retried = true
	return true
}
