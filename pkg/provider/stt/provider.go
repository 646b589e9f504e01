// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a local recognition engine (whisper.cpp via its CGO
// bindings in production, a scripted mock in tests) and exposes a uniform
// stateless call: one audio window in, one recognition result out. Windowing,
// overlap stitching, ordering, and retry policy all live in the pipeline
// coordinator; the provider only turns samples into text.
//
// Implementations must be safe for concurrent use. The coordinator may run
// recognition calls for several sessions at once, bounded by a global ceiling.
package stt

import (
	"context"
	"errors"
	"time"

	"github.com/quillscribe/quill/pkg/types"
)

// ErrModelUnavailable is returned when the requested resource profile has no
// loaded model and no fallback is possible.
var ErrModelUnavailable = errors.New("stt: no model loaded for requested profile")

// Window is one fixed-duration, possibly overlapping slice of captured audio
// submitted for recognition.
type Window struct {
	// Samples is mono PCM, float32 in [-1, 1].
	Samples []float32

	// SampleRate in Hz. Local whisper models expect 16000.
	SampleRate int

	// StartOffset is the window's position relative to capture start. Span
	// offsets in the result are absolute, i.e. already shifted by this value.
	StartOffset time.Duration

	// Duration is the window's audio length.
	Duration time.Duration

	// Source identifies which device the audio came from.
	Source types.AudioSource

	// Language is the recognition language code (e.g. "en", "hi"). Empty
	// selects the provider default.
	Language string
}

// Span is a time-aligned piece of recognized text within a window.
type Span struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Result is the outcome of one recognition call.
type Result struct {
	// Text is the full recognized text for the window, span texts joined in
	// order. Empty when the window contained no recognizable speech.
	Text string

	// Confidence is a display-only quality score (0.0–1.0). Zero when the
	// engine does not report one.
	Confidence float64

	// Spans carries per-utterance timing when the engine provides it. Span
	// offsets are absolute (shifted by Window.StartOffset). May be nil.
	Spans []Span

	// Profile is the resource profile the call actually ran under. It may
	// differ from the requested profile when the provider fell back.
	Profile types.ResourceProfile
}

// Provider is the abstraction over any speech-to-text backend.
//
// Transcribe is stateless per call: the provider holds no per-session state
// and results depend only on the given window and profile. A failed call
// affects only that window; the caller decides whether to record a gap or
// escalate.
type Provider interface {
	Transcribe(ctx context.Context, w Window, profile types.ResourceProfile) (*Result, error)
}
