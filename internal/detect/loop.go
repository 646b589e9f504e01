package detect

import (
	"context"
	"log/slog"
	"time"

	"github.com/quillscribe/quill/pkg/types"
)

// Sink receives detection events. Implementations must return quickly: the
// loop calls them inline between polls and never blocks on per-session work,
// so anything slow must be handed off to a goroutine by the sink itself.
type Sink interface {
	// PlatformDetected reports a positive match for handle. The sink is
	// called on every poll the match is present; idempotence is the sink's
	// job (re-detecting a live handle is a no-op in the session registry).
	PlatformDetected(platform types.Platform, handle types.Handle)

	// HandleGone reports that a previously matched handle disappeared from
	// the snapshot (meeting window closed, process exited).
	HandleGone(handle types.Handle)
}

// LoopOption configures a [Loop].
type LoopOption func(*Loop)

// WithInterval sets the polling interval. The default is 2 seconds.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithPlatformFilter restricts which platforms produce detections. The
// filter is consulted on every poll, so a hot-reloaded enabled_platforms list
// takes effect without restarting the loop. Nil enables everything.
func WithPlatformFilter(enabled func(types.Platform) bool) LoopOption {
	return func(l *Loop) { l.enabled = enabled }
}

// Loop is the single long-lived detection goroutine. It polls the
// SignalSource on a fixed interval, classifies entries through the Matcher,
// and reports matches and disappearances to the Sink.
type Loop struct {
	source   SignalSource
	matcher  *Matcher
	sink     Sink
	interval time.Duration
	enabled  func(types.Platform) bool

	// matched tracks handles reported as detected, so disappearance can be
	// reported exactly for those. Owned by the Run goroutine.
	matched map[types.Handle]types.Platform
}

// NewLoop builds a detection loop. Run must be called to start polling.
func NewLoop(source SignalSource, matcher *Matcher, sink Sink, opts ...LoopOption) *Loop {
	l := &Loop{
		source:   source,
		matcher:  matcher,
		sink:     sink,
		interval: 2 * time.Second,
		matched:  make(map[types.Handle]types.Platform),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run polls until ctx is cancelled. A failing snapshot is logged and skipped;
// detection must keep going so new meetings are still discovered while
// existing sessions run.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	// First poll happens immediately rather than one interval in.
	l.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.pollOnce(ctx)
		}
	}
}

func (l *Loop) pollOnce(ctx context.Context) {
	snap, err := l.source.Snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("detect: snapshot failed, skipping poll", "err", err)
		}
		return
	}

	present := make(map[types.Handle]struct{}, len(snap.Entries))
	for _, e := range snap.Entries {
		platform, ok := l.matcher.Match(e)
		if !ok {
			continue
		}
		if l.enabled != nil && !l.enabled(platform) {
			continue
		}
		present[e.Handle] = struct{}{}
		if _, seen := l.matched[e.Handle]; !seen {
			slog.Debug("detect: platform matched", "platform", platform, "handle", e.Handle)
		}
		l.matched[e.Handle] = platform
		l.sink.PlatformDetected(platform, e.Handle)
	}

	for h := range l.matched {
		if _, ok := present[h]; !ok {
			slog.Debug("detect: handle gone", "handle", h)
			delete(l.matched, h)
			l.sink.HandleGone(h)
		}
	}
}
