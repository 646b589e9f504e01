package govern

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quillscribe/quill/pkg/types"
)

// Governor decides which resource profile recognition calls run under. It
// never exceeds the configured target profile; under load it drops to tiny
// and climbs back only after a calm dwell period.
//
// Profile is safe to call from any goroutine; the pipeline consults it before
// every recognition call.
type Governor struct {
	sampler  Sampler
	backlog  func() int64
	interval time.Duration
	dwell    time.Duration
	high     float64
	low      float64
	maxQueue float64
	target   types.ResourceProfile

	mu         sync.RWMutex
	current    types.ResourceProfile
	belowSince time.Time
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithInterval sets how often the host is sampled.
func WithInterval(d time.Duration) GovernorOption {
	return func(g *Governor) {
		if d > 0 {
			g.interval = d
		}
	}
}

// WithDwell sets how long load must stay below the low watermark before an
// upgrade.
func WithDwell(d time.Duration) GovernorOption {
	return func(g *Governor) {
		if d > 0 {
			g.dwell = d
		}
	}
}

// WithWatermarks sets the hysteresis band. Load at or above high downgrades;
// load below low (sustained) upgrades.
func WithWatermarks(low, high float64) GovernorOption {
	return func(g *Governor) {
		if low > 0 && high > low {
			g.low, g.high = low, high
		}
	}
}

// WithTarget sets the profile the governor upgrades back to when the host is
// calm. It is also the starting profile.
func WithTarget(p types.ResourceProfile) GovernorOption {
	return func(g *Governor) {
		if p.Valid() {
			g.target = p
			g.current = p
		}
	}
}

// WithBacklogFunc installs the pending-window backlog source, normalized
// against limit. The pipeline coordinator provides it.
func WithBacklogFunc(fn func() int64, limit int) GovernorOption {
	return func(g *Governor) {
		if fn != nil {
			g.backlog = fn
		}
		if limit > 0 {
			g.maxQueue = float64(limit)
		}
	}
}

// NewGovernor creates a Governor around the given sampler.
func NewGovernor(sampler Sampler, opts ...GovernorOption) *Governor {
	g := &Governor{
		sampler:  sampler,
		backlog:  func() int64 { return 0 },
		interval: 5 * time.Second,
		dwell:    30 * time.Second,
		high:     0.8,
		low:      0.5,
		maxQueue: 16,
		target:   types.ProfileTiny,
		current:  types.ProfileTiny,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Profile returns the profile future recognition calls should use.
func (g *Governor) Profile() types.ResourceProfile {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Run samples the host on the configured interval until ctx is done.
func (g *Governor) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s, err := g.sampler.Sample(ctx)
			g.step(now, s, err)
		}
	}
}

// step applies one observation. A sampler failure is treated as unknown load
// and forces the conservative profile.
func (g *Governor) step(now time.Time, s Sample, serr error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if serr != nil {
		if g.current != types.ProfileTiny {
			slog.Warn("governor: sampler failed, downgrading",
				"profile", types.ProfileTiny, "error", serr)
		}
		g.current = types.ProfileTiny
		g.belowSince = time.Time{}
		return
	}

	load := max(s.CPULoad, s.MemUsed, float64(g.backlog())/g.maxQueue)

	switch {
	case load >= g.high:
		if g.current != types.ProfileTiny {
			slog.Info("governor: downgrading",
				"load", load, "high_watermark", g.high)
		}
		g.current = types.ProfileTiny
		g.belowSince = time.Time{}

	case load < g.low:
		if g.current == g.target {
			g.belowSince = time.Time{}
			return
		}
		if g.belowSince.IsZero() {
			g.belowSince = now
			return
		}
		if now.Sub(g.belowSince) >= g.dwell {
			slog.Info("governor: upgrading",
				"profile", g.target, "load", load, "dwell", g.dwell)
			g.current = g.target
			g.belowSince = time.Time{}
		}

	default:
		// Inside the hysteresis band: hold the current profile and restart
		// the dwell clock.
		g.belowSince = time.Time{}
	}
}
