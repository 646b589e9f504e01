// Package pipeline turns captured audio chunks into an ordered transcript.
//
// Chunks are grouped into fixed-duration windows that overlap their
// predecessor, each window is submitted to an STT provider under a global
// concurrency ceiling, and the per-window results are stitched back together
// by discarding the overlap region. Lost audio (buffer drops, queue
// evictions, failed recognition calls) surfaces as empty-text gap segments so
// that downstream sequence numbers stay contiguous.
package pipeline

import (
	"time"

	"github.com/quillscribe/quill/pkg/provider/stt"
	"github.com/quillscribe/quill/pkg/types"
)

// Window is one recognition unit queued for transcription. GapBefore marks
// that audio between the previous window and this one was lost.
type Window struct {
	stt.Window
	GapBefore bool
}

// Assembler accumulates chunks from a single audio source and cuts them into
// overlapping windows. Windows are window long and start overlap before the
// previous window ends, so consecutive windows share an overlap-sized region.
//
// Assembler is not safe for concurrent use; the coordinator owns one per
// audio source on its feeding goroutine.
type Assembler struct {
	window     time.Duration
	overlap    time.Duration
	sampleRate int
	language   string

	samples    []float32
	start      time.Duration
	source     types.AudioSource
	started    bool
	pendingGap bool
}

// NewAssembler creates an assembler producing windows of the given duration
// that overlap their predecessor by overlap. Overlap must be shorter than
// window; the config layer validates that before anything reaches here.
func NewAssembler(window, overlap time.Duration, sampleRate int, language string) *Assembler {
	return &Assembler{
		window:     window,
		overlap:    overlap,
		sampleRate: sampleRate,
		language:   language,
	}
}

func (a *Assembler) windowSamples() int {
	return int(float64(a.sampleRate) * a.window.Seconds())
}

func (a *Assembler) hopSamples() int {
	return int(float64(a.sampleRate) * (a.window - a.overlap).Seconds())
}

// Add appends one chunk and returns any windows completed by it. A chunk
// carrying a gap marker, or one whose offset does not line up with the
// accumulated audio, flushes the partial window and marks the next emitted
// window with GapBefore.
func (a *Assembler) Add(c types.Chunk) []Window {
	var out []Window

	if !a.started {
		a.start = c.StartOffset
		a.source = c.Source
		a.started = true
		if c.GapBefore {
			a.pendingGap = true
		}
	} else {
		expected := a.start + a.durationOf(len(a.samples))
		misaligned := c.StartOffset-expected > time.Millisecond || expected-c.StartOffset > time.Millisecond
		if c.GapBefore || misaligned {
			if w := a.flushPartial(); w != nil {
				out = append(out, *w)
			}
			a.start = c.StartOffset
			a.pendingGap = true
		}
	}

	a.samples = append(a.samples, c.Samples...)

	ws, hop := a.windowSamples(), a.hopSamples()
	for len(a.samples) >= ws {
		out = append(out, a.emit(a.samples[:ws], a.window))
		a.samples = a.samples[hop:]
		a.start += a.window - a.overlap
	}
	return out
}

// Flush returns the remaining partial window at end of capture, or nil when
// no audio is pending.
func (a *Assembler) Flush() *Window {
	return a.flushPartial()
}

func (a *Assembler) flushPartial() *Window {
	if len(a.samples) == 0 {
		return nil
	}
	w := a.emit(a.samples, a.durationOf(len(a.samples)))
	a.samples = nil
	a.start += w.Duration
	return &w
}

func (a *Assembler) emit(samples []float32, dur time.Duration) Window {
	buf := make([]float32, len(samples))
	copy(buf, samples)
	w := Window{
		Window: stt.Window{
			Samples:     buf,
			SampleRate:  a.sampleRate,
			StartOffset: a.start,
			Duration:    dur,
			Source:      a.source,
			Language:    a.language,
		},
		GapBefore: a.pendingGap,
	}
	a.pendingGap = false
	return w
}

func (a *Assembler) durationOf(n int) time.Duration {
	return time.Duration(float64(n) / float64(a.sampleRate) * float64(time.Second))
}
