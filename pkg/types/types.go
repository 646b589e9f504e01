// Package types defines the shared types used across all Quill packages.
//
// These types form the lingua franca between the detection loop, the session
// registry, the pipeline stages, and the providers. Each package defines its
// own domain types, but cross-cutting data structures live here to avoid
// circular imports.
package types

import "time"

// Platform identifies a supported meeting application.
type Platform string

const (
	PlatformZoom       Platform = "zoom"
	PlatformTeams      Platform = "teams"
	PlatformGoogleMeet Platform = "google-meet"
	PlatformUnknown    Platform = "unknown"
)

// Handle is an opaque reference to the detected process or window a session
// is bound to. Two sessions are concurrent iff their handles differ.
type Handle string

// ResourceProfile is the model-size tier selected by the governor.
// Tiny is the conservative fallback; Small is the upgraded tier.
type ResourceProfile string

const (
	ProfileTiny  ResourceProfile = "tiny"
	ProfileSmall ResourceProfile = "small"
)

// Valid reports whether p names a known profile.
func (p ResourceProfile) Valid() bool {
	return p == ProfileTiny || p == ProfileSmall
}

// AudioSource labels which device a chunk or segment came from.
type AudioSource string

const (
	SourceMic    AudioSource = "mic"
	SourceSystem AudioSource = "system"
)

// Chunk is a fixed-duration slice of captured audio. Chunks are produced in
// monotonically increasing StartOffset order and never reordered.
type Chunk struct {
	// Samples is mono PCM, float32 in [-1, 1].
	Samples []float32

	// SampleRate in Hz (16000 for local recognition).
	SampleRate int

	// StartOffset is the chunk's position relative to capture start.
	StartOffset time.Duration

	// Duration is the chunk's audio length.
	Duration time.Duration

	// Source identifies the capturing device.
	Source AudioSource

	// GapBefore is set when one or more chunks immediately preceding this
	// one were dropped under backpressure.
	GapBefore bool
}

// Segment is one transcript entry. SequenceNumber values within a session
// form a contiguous range starting at 0; audio gaps become empty-text
// segments so numbering never has holes.
type Segment struct {
	SequenceNumber int

	// StartOffsetMs and EndOffsetMs are audio-relative; start < end.
	StartOffsetMs int64
	EndOffsetMs   int64

	// Text is the recognized text. Empty for gap segments.
	Text string

	// Confidence is a display-only quality score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Source identifies which device the underlying audio came from.
	Source AudioSource
}

// IsGap reports whether the segment stands in for audio that produced no text.
func (s Segment) IsGap() bool { return s.Text == "" }

// SummarySection is one named block of summary text.
type SummarySection struct {
	Title string
	Body  string
}

// Summary is the artifact produced by the summarization collaborator. The
// section structure is opaque to the core; whatever the collaborator returns
// is persisted as-is.
type Summary struct {
	GeneratedAt time.Time
	Sections    []SummarySection
}

// ConsentDecision is the outcome of the single consent prompt for a session.
type ConsentDecision string

const (
	ConsentPending  ConsentDecision = "pending"
	ConsentAccepted ConsentDecision = "accepted"
	ConsentDisabled ConsentDecision = "disabled"
	ConsentTimedOut ConsentDecision = "timed_out"
)
