package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/quillscribe/quill/internal/audio"
	"github.com/quillscribe/quill/internal/resilience"
	"github.com/quillscribe/quill/pkg/provider/stt"
	"github.com/quillscribe/quill/pkg/types"
)

// ErrFinalizeTimeout is returned by Run when queued windows could not be
// drained within the finalize deadline after capture stopped.
var ErrFinalizeTimeout = errors.New("pipeline: finalize deadline exceeded with windows pending")

// Appender receives stitched transcript pieces in order. Empty text marks a
// gap. Implemented by session.Session.
type Appender interface {
	Append(startMs, endMs int64, text string, confidence float64, source types.AudioSource) (types.Segment, error)
}

// Coordinator runs the chunk-to-segment pipeline for any number of sessions.
// Recognition calls across all sessions share one concurrency ceiling; within
// a session windows are recognized strictly one at a time, in order.
type Coordinator struct {
	provider stt.Provider
	sem      *semaphore.Weighted

	window          time.Duration
	overlap         time.Duration
	sampleRate      int
	language        string
	queueDepth      int
	threshold       int
	finalizeTimeout time.Duration
	profile         func() types.ResourceProfile

	backlog atomic.Int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWindow sets the window duration.
func WithWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithOverlap sets how much each window overlaps its predecessor.
func WithOverlap(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.overlap = d
		}
	}
}

// WithSampleRate sets the expected capture sample rate.
func WithSampleRate(hz int) Option {
	return func(c *Coordinator) {
		if hz > 0 {
			c.sampleRate = hz
		}
	}
}

// WithLanguage sets the recognition language passed to the provider.
func WithLanguage(lang string) Option {
	return func(c *Coordinator) { c.language = lang }
}

// WithCeiling bounds concurrent recognition calls across all sessions.
func WithCeiling(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithQueueDepth bounds each session's pending-window FIFO.
func WithQueueDepth(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.queueDepth = n
		}
	}
}

// WithFailureThreshold sets how many consecutive recognition failures fail
// the session instead of recording another gap.
func WithFailureThreshold(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithFinalizeTimeout bounds how long Run keeps draining queued windows after
// capture stops.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.finalizeTimeout = d
		}
	}
}

// WithProfileFunc installs the resource-profile source consulted before every
// recognition call. The governor provides it in production.
func WithProfileFunc(fn func() types.ResourceProfile) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.profile = fn
		}
	}
}

// New creates a Coordinator around the given provider.
func New(provider stt.Provider, opts ...Option) *Coordinator {
	c := &Coordinator{
		provider:        provider,
		sem:             semaphore.NewWeighted(2),
		window:          4 * time.Second,
		overlap:         500 * time.Millisecond,
		sampleRate:      16000,
		queueDepth:      16,
		threshold:       5,
		finalizeTimeout: 2 * time.Minute,
		profile:         func() types.ResourceProfile { return types.ProfileTiny },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backlog returns the number of windows queued across all running sessions.
// The governor samples it as a load signal.
func (c *Coordinator) Backlog() int64 {
	return c.backlog.Load()
}

// Run consumes chunks from src until it is closed and drained, appending
// stitched segments to sink. It returns nil on a clean finish,
// ErrFinalizeTimeout when draining overran the finalize deadline, a wrapped
// resilience.ErrEscalated after too many consecutive recognition failures, or
// the context error on cancellation. Run blocks until the pipeline for this
// session has fully stopped.
func (c *Coordinator) Run(ctx context.Context, sessionID string, src *audio.Buffer, sink Appender) error {
	q := newWindowQueue(c.queueDepth, &c.backlog)
	esc := resilience.NewEscalator(sessionID, c.threshold)

	drainCtx, drainCancel := context.WithCancel(ctx)
	defer drainCancel()
	var drainTimedOut atomic.Bool

	g, gctx := errgroup.WithContext(drainCtx)

	g.Go(func() error {
		defer q.close()
		return c.feed(gctx, sessionID, src, q, func() {
			time.AfterFunc(c.finalizeTimeout, func() {
				if q.len() > 0 {
					drainTimedOut.Store(true)
				}
				drainCancel()
			})
		})
	})

	g.Go(func() error {
		return c.work(gctx, sessionID, q, sink, esc)
	})

	err := g.Wait()
	if drainTimedOut.Load() {
		return fmt.Errorf("%w: session %s", ErrFinalizeTimeout, sessionID)
	}
	return err
}

// feed pops chunks, assembles windows per audio source, and enqueues them.
// onDrain fires once when the source is exhausted and draining begins.
func (c *Coordinator) feed(ctx context.Context, sessionID string, src *audio.Buffer, q *windowQueue, onDrain func()) error {
	asms := make(map[types.AudioSource]*Assembler)

	enqueue := func(w Window) {
		if err := q.push(w); errors.Is(err, ErrQueueFull) {
			slog.Warn("pipeline: window queue overflow",
				"session_id", sessionID,
				"queue_depth", c.queueDepth)
		}
	}

	for {
		chunk, err := src.Pop(ctx)
		if errors.Is(err, audio.ErrClosed) {
			for _, a := range asms {
				if w := a.Flush(); w != nil {
					enqueue(*w)
				}
			}
			onDrain()
			return nil
		}
		if err != nil {
			return err
		}

		a, ok := asms[chunk.Source]
		if !ok {
			a = NewAssembler(c.window, c.overlap, c.sampleRate, c.language)
			asms[chunk.Source] = a
		}
		for _, w := range a.Add(chunk) {
			enqueue(w)
		}
	}
}

// work pops windows in order, recognizes them under the global ceiling, and
// appends stitched segments. Failed windows become gaps until the escalation
// threshold trips.
func (c *Coordinator) work(ctx context.Context, sessionID string, q *windowQueue, sink Appender, esc *resilience.Escalator) error {
	stitchers := make(map[types.AudioSource]*Stitcher)

	for {
		w, err := q.pop(ctx)
		if errors.Is(err, errQueueClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		st, ok := stitchers[w.Source]
		if !ok {
			st = NewStitcher()
			stitchers[w.Source] = st
		}

		if w.GapBefore {
			c.appendGap(sink, st, w.Source, st.EmittedEnd(), w.StartOffset.Milliseconds())
			st.Break()
		}

		res, terr := c.transcribe(ctx, w)
		if terr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if eerr := esc.Failure(); eerr != nil {
				return fmt.Errorf("session %s: %w (last recognition error: %v)", sessionID, eerr, terr)
			}
			slog.Warn("pipeline: recognition failed, recording gap",
				"session_id", sessionID,
				"window_start", w.StartOffset,
				"error", terr)
			c.appendGap(sink, st, w.Source, st.EmittedEnd(), (w.StartOffset + w.Duration).Milliseconds())
			st.Break()
			continue
		}
		esc.Success()

		if seg, ok := st.Stitch(w, res); ok {
			if _, err := sink.Append(seg.startMs, seg.endMs, seg.text, seg.confidence, w.Source); err != nil {
				return fmt.Errorf("session %s: append segment: %w", sessionID, err)
			}
		}
	}
}

func (c *Coordinator) transcribe(ctx context.Context, w Window) (*stt.Result, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)
	return c.provider.Transcribe(ctx, w.Window, c.profile())
}

// appendGap writes an empty-text segment covering [startMs, endMs) and moves
// the stitcher's watermark past it. Zero-length gaps are skipped.
func (c *Coordinator) appendGap(sink Appender, st *Stitcher, source types.AudioSource, startMs, endMs int64) {
	if endMs <= startMs {
		return
	}
	if _, err := sink.Append(startMs, endMs, "", 0, source); err != nil {
		slog.Warn("pipeline: append gap segment", "error", err)
		return
	}
	st.MarkCovered(time.Duration(endMs) * time.Millisecond)
}
