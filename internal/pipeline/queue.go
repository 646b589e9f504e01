package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrQueueFull is returned by push when the queue was at capacity and the
// oldest pending window had to be evicted to make room.
var ErrQueueFull = errors.New("pipeline: window queue full, oldest window dropped")

var errQueueClosed = errors.New("pipeline: window queue closed")

// windowQueue is the bounded FIFO between the chunk-feeding goroutine and the
// recognition worker. Overflow evicts the oldest pending window and marks the
// new head with GapBefore so the lost time range surfaces as a gap segment.
// Windows are never reordered.
type windowQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	items   []Window
	max     int
	closed  bool
	dropped int

	backlog *atomic.Int64
}

func newWindowQueue(max int, backlog *atomic.Int64) *windowQueue {
	if max <= 0 {
		max = 16
	}
	q := &windowQueue{max: max, backlog: backlog}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// push enqueues w without blocking. When the queue is full it evicts the
// oldest pending window and returns ErrQueueFull; the caller only logs it.
func (q *windowQueue) push(w Window) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errQueueClosed
	}

	var err error
	if len(q.items) >= q.max {
		q.items = q.items[1:]
		q.dropped++
		q.backlog.Add(-1)
		if len(q.items) > 0 {
			q.items[0].GapBefore = true
		} else {
			w.GapBefore = true
		}
		err = ErrQueueFull
	}

	q.items = append(q.items, w)
	q.backlog.Add(1)
	q.notEmpty.Signal()
	return err
}

// pop blocks until a window is available, the context is done, or the queue
// is closed and drained.
func (q *windowQueue) pop(ctx context.Context) (Window, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return Window{}, errQueueClosed
		}
		if ctx.Err() != nil {
			return Window{}, ctx.Err()
		}
		q.notEmpty.Wait()
	}

	w := q.items[0]
	q.items = q.items[1:]
	q.backlog.Add(-1)
	return w, nil
}

// close stops accepting windows. Already queued windows remain poppable.
func (q *windowQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
}

func (q *windowQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
