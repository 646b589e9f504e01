// Package audio provides session audio capture: a portaudio-backed capturer
// producing fixed-duration timestamped chunks, and the bounded buffer sitting
// between capture and the transcription pipeline.
package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quillscribe/quill/pkg/types"
)

// ErrClosed is returned by Pop once the buffer is closed and drained.
var ErrClosed = errors.New("audio: buffer closed")

// Buffer is the bounded chunk queue between capture and consumption. Each
// session owns exactly one; there is no cross-session sharing.
//
// When the consumer lags, Push blocks for a bounded grace window and then
// drops the OLDEST unconsumed chunk, marking the chunk now at the head with
// GapBefore so the transcript records the hole. Chunks are never reordered.
//
// Closing the buffer stops intake immediately but keeps buffered chunks
// poppable, so the pipeline gets its final pass over everything captured
// before the stop.
type Buffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	chunks     []types.Chunk
	capacity   int
	grace      time.Duration
	closed     bool
	pendingGap bool
	dropped    int
}

// NewBuffer builds a buffer holding up to capacity chunks, with the given
// backpressure grace window before a drop.
func NewBuffer(capacity int, grace time.Duration) *Buffer {
	if capacity <= 0 {
		capacity = 64
	}
	b := &Buffer{capacity: capacity, grace: grace}
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// Push appends one chunk in capture order. On a full buffer it blocks up to
// the grace window for the consumer to catch up, then drops the oldest chunk.
// The return value reports whether a drop happened. Pushing to a closed
// buffer silently discards the chunk; the device goroutine may race the stop.
func (b *Buffer) Push(c types.Chunk) (droppedOldest bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}

	if len(b.chunks) >= b.capacity {
		deadline := time.Now().Add(b.grace)
		timer := time.AfterFunc(b.grace, func() {
			b.mu.Lock()
			b.notFull.Broadcast()
			b.mu.Unlock()
		})
		for len(b.chunks) >= b.capacity && !b.closed && time.Now().Before(deadline) {
			b.notFull.Wait()
		}
		timer.Stop()
		if b.closed {
			return false
		}
		if len(b.chunks) >= b.capacity {
			b.chunks = b.chunks[1:]
			b.dropped++
			droppedOldest = true
			if len(b.chunks) > 0 {
				b.chunks[0].GapBefore = true
			} else {
				b.pendingGap = true
			}
		}
	}

	if b.pendingGap {
		c.GapBefore = true
		b.pendingGap = false
	}
	b.chunks = append(b.chunks, c)
	b.notEmpty.Broadcast()
	return droppedOldest
}

// Pop removes and returns the oldest chunk, blocking until one is available,
// the buffer is closed and drained (ErrClosed), or ctx is done.
func (b *Buffer) Pop(ctx context.Context) (types.Chunk, error) {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.notEmpty.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.chunks) == 0 && !b.closed && ctx.Err() == nil {
		b.notEmpty.Wait()
	}
	if err := ctx.Err(); err != nil && len(b.chunks) == 0 {
		return types.Chunk{}, err
	}
	if len(b.chunks) == 0 {
		return types.Chunk{}, ErrClosed
	}
	c := b.chunks[0]
	b.chunks = b.chunks[1:]
	b.notFull.Broadcast()
	return c, nil
}

// Close stops intake. Buffered chunks stay readable until drained.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Len returns the number of buffered, unconsumed chunks.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Dropped returns the number of chunks dropped under backpressure.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
