// Package app wires the subsystems into one supervisor: the detection loop
// feeds sessions, each session runs consent, capture, recognition, summary
// and artifact writing in its own goroutine, and a shared governor picks the
// resource profile for all of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/quillscribe/quill/internal/artifact"
	"github.com/quillscribe/quill/internal/audio"
	"github.com/quillscribe/quill/internal/config"
	"github.com/quillscribe/quill/internal/consent"
	"github.com/quillscribe/quill/internal/detect"
	"github.com/quillscribe/quill/internal/govern"
	"github.com/quillscribe/quill/internal/health"
	"github.com/quillscribe/quill/internal/observe"
	"github.com/quillscribe/quill/internal/pipeline"
	"github.com/quillscribe/quill/internal/session"
	"github.com/quillscribe/quill/internal/summarize"
	"github.com/quillscribe/quill/pkg/provider/llm"
	"github.com/quillscribe/quill/pkg/provider/stt"
	"github.com/quillscribe/quill/pkg/types"
)

// ErrUnknownSession is returned by StopSession when no live runner matches
// the given session id.
var ErrUnknownSession = errors.New("app: unknown or inactive session")

// Providers carries the concrete model backends selected at startup.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
}

// CaptureFactory builds a fresh audio source per session. Production uses
// the portaudio capturer; tests inject fakes that replay canned chunks.
type CaptureFactory func() (audio.Source, error)

// Option customises App construction, mainly so tests can swap out the
// pieces that touch the OS (process snapshots, audio devices, prompts).
type Option func(*App)

// WithSignalSource replaces the /proc-backed detection source.
func WithSignalSource(src detect.SignalSource) Option {
	return func(a *App) { a.signalSource = src }
}

// WithPrompter replaces the WebSocket consent hub with another prompter.
func WithPrompter(p consent.Prompter) Option {
	return func(a *App) { a.prompter = p }
}

// WithCaptureFactory replaces the portaudio capture source.
func WithCaptureFactory(f CaptureFactory) Option {
	return func(a *App) { a.captureFactory = f }
}

// WithSampler replaces the procfs load sampler driving the governor.
func WithSampler(s govern.Sampler) Option {
	return func(a *App) { a.sampler = s }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// App owns the long-lived subsystems and the per-session runner goroutines.
type App struct {
	cfg atomic.Pointer[config.Config]

	providers Providers
	metrics   *observe.Metrics

	signalSource   detect.SignalSource
	prompter       consent.Prompter
	captureFactory CaptureFactory
	sampler        govern.Sampler

	registry   *session.Registry
	loop       *detect.Loop
	hub        *consent.Hub
	consent    *consent.Controller
	governor   *govern.Governor
	coord      *pipeline.Coordinator
	summarizer *summarize.Summarizer

	writerMu sync.Mutex
	writer   *artifact.Writer

	mu      sync.Mutex
	runners map[types.Handle]*runner
	// suppressed holds handles whose session went terminal while the
	// meeting was still on screen. Without it the next detection poll
	// would recreate the session and re-prompt; the handle stays muted
	// until it disappears from a snapshot.
	suppressed map[types.Handle]struct{}

	wg       sync.WaitGroup
	stopOnce sync.Once
	closers  []func() error
}

// New wires every subsystem from cfg and the selected providers. Nothing
// runs until Run is called.
func New(cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	if providers.STT == nil {
		return nil, errors.New("app: an stt provider is required")
	}

	a := &App{
		providers:  providers,
		runners:    make(map[types.Handle]*runner),
		suppressed: make(map[types.Handle]struct{}),
	}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	writer, err := artifact.NewWriter(cfg.OutputDirectory)
	if err != nil {
		return nil, err
	}
	a.writer = writer

	if a.signalSource == nil {
		src, err := detect.NewProcSource()
		if err != nil {
			return nil, fmt.Errorf("app: detection source: %w", err)
		}
		a.signalSource = src
	}
	if a.prompter == nil {
		a.hub = consent.NewHub()
		a.prompter = a.hub
	}
	if a.captureFactory == nil {
		a.captureFactory = func() (audio.Source, error) {
			return audio.NewCapturer(cfg.Audio.Rate(),
				audio.WithChunkDuration(cfg.Audio.ChunkDuration()),
				audio.WithSystemAudio(cfg.Audio.CaptureSystemAudio),
			)
		}
	}
	if a.sampler == nil {
		sampler, err := govern.NewProcSampler()
		if err != nil {
			// No sampler means no headroom signal; the governor then
			// pins every session to the tiny profile.
			slog.Warn("procfs sampler unavailable, pinning tiny profile", "error", err)
			a.sampler = failingSampler{err: err}
		} else {
			a.sampler = sampler
		}
	}

	a.registry = session.NewRegistry()
	a.consent = consent.NewController(a.prompter, cfg.ConsentTimeout())

	a.coord = pipeline.New(providers.STT,
		pipeline.WithWindow(cfg.Pipeline.Window()),
		pipeline.WithOverlap(cfg.Pipeline.Overlap()),
		pipeline.WithSampleRate(cfg.Audio.Rate()),
		pipeline.WithLanguage(cfg.Language),
		pipeline.WithCeiling(cfg.Pipeline.Ceiling()),
		pipeline.WithQueueDepth(cfg.Pipeline.QueueDepth()),
		pipeline.WithFailureThreshold(cfg.Pipeline.Threshold()),
		pipeline.WithFinalizeTimeout(cfg.Pipeline.FinalizeTimeout()),
	)

	a.governor = govern.NewGovernor(a.sampler,
		govern.WithTarget(cfg.Profile()),
		govern.WithInterval(cfg.Governor.SampleInterval()),
		govern.WithDwell(cfg.Governor.UpgradeDwell()),
		govern.WithWatermarks(cfg.Governor.LowWatermark(), cfg.Governor.HighWatermark()),
		govern.WithBacklogFunc(a.coord.Backlog, int64(cfg.Pipeline.QueueDepth())),
	)
	// Profile lookups happen per recognition window, after the governor
	// exists, so rebind it here instead of at pipeline construction time.
	pipeline.WithProfileFunc(a.governor.Profile)(a.coord)

	if err := a.metrics.RegisterBacklogGauge(a.coord.Backlog); err != nil {
		slog.Warn("backlog gauge registration failed", "error", err)
	}

	if providers.LLM != nil {
		a.summarizer = summarize.New(providers.LLM,
			summarize.WithMinRunes(cfg.Summary.MinRunes()),
		)
	}

	return a, nil
}

// Run starts the governor, the detection loop, and (when configured) the
// local HTTP listener, then blocks until ctx is cancelled or a subsystem
// fails. In-flight sessions are drained by Shutdown, not here.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg.Load()

	matcher := detect.NewMatcher(detect.DefaultRules())
	a.loop = detect.NewLoop(a.signalSource, matcher, a,
		detect.WithInterval(cfg.PollingInterval()),
		detect.WithPlatformFilter(func(p types.Platform) bool {
			return a.cfg.Load().PlatformEnabled(p)
		}),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.governor.Run(gctx) })
	g.Go(func() error { return a.loop.Run(gctx) })

	if addr := cfg.ListenAddr; addr != "" {
		srv := a.httpServer(addr)
		g.Go(func() error {
			slog.Info("listener started", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

func (a *App) httpServer(addr string) *http.Server {
	mux := http.NewServeMux()
	if a.hub != nil {
		mux.Handle("/ws", a.hub)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /sessions/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := a.StopSession(r.PathValue("id")); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /sessions/{id}/retry", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		paths, err := a.RetryWrite(id)
		if errors.Is(err, session.ErrNoRetry) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"transcript":%q,"summary":%q}`+"\n", paths.Transcript, paths.Summary)
	})
	health.New(
		health.Checker{Name: "stt_provider", Check: func(ctx context.Context) error {
			if a.providers.STT == nil {
				return errors.New("no stt provider")
			}
			return nil
		}},
	).Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Shutdown ends every live session as if its meeting had closed, then waits
// for the runners to finish writing artifacts, bounded by ctx.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		for _, r := range a.runners {
			r.meetingEnded()
		}
		a.mu.Unlock()

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("app: shutdown: sessions still draining: %w", ctx.Err())
			return
		}

		for _, c := range a.closers {
			err = errors.Join(err, c())
		}
	})
	return err
}

// ApplyConfig picks up the hot-reloadable settings from a freshly loaded
// config: enabled platforms (read live by the detection filter), the output
// directory, and the default resource profile for new sessions. Everything
// else needs a restart.
func (a *App) ApplyConfig(cfg *config.Config) error {
	old := a.cfg.Load()
	a.cfg.Store(cfg)

	if cfg.OutputDirectory != old.OutputDirectory {
		writer, err := artifact.NewWriter(cfg.OutputDirectory)
		if err != nil {
			return err
		}
		a.writerMu.Lock()
		a.writer = writer
		a.writerMu.Unlock()
		slog.Info("output directory changed", "dir", cfg.OutputDirectory)
	}
	return nil
}

// PlatformDetected implements detect.Sink. The loop reports a live handle on
// every poll; an existing non-terminal session makes this a no-op.
func (a *App) PlatformDetected(platform types.Platform, handle types.Handle) {
	a.mu.Lock()
	_, muted := a.suppressed[handle]
	a.mu.Unlock()
	if muted {
		return
	}

	sess, err := a.registry.Create(platform, handle, a.cfg.Load().Profile())
	if err != nil {
		if !errors.Is(err, session.ErrHandleBusy) {
			slog.Error("session create failed", "platform", platform, "handle", handle, "error", err)
		}
		return
	}

	r := &runner{sess: sess, end: make(chan struct{})}
	a.mu.Lock()
	a.runners[handle] = r
	a.mu.Unlock()
	a.publish(sess, "detected", string(platform))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runSession(context.Background(), r)
	}()
}

// HandleGone implements detect.Sink. The meeting window or process vanished,
// so the session (if any) moves to finalizing.
func (a *App) HandleGone(handle types.Handle) {
	a.mu.Lock()
	delete(a.suppressed, handle)
	r, ok := a.runners[handle]
	a.mu.Unlock()
	if ok {
		r.meetingEnded()
	}
}

// StopSession ends a live session on user request, exactly as if its meeting
// window had closed: capture halts at once and the session finalizes with
// whatever was transcribed so far.
func (a *App) StopSession(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.runners {
		if r.sess.ID == id {
			r.meetingEnded()
			return nil
		}
	}
	return ErrUnknownSession
}

// RetryWrite re-attempts artifact writing for an abandoned session. Exactly
// one retry is available per session; success or a second call returns
// session.ErrNoRetry.
func (a *App) RetryWrite(id string) (session.OutputPaths, error) {
	sess, err := a.registry.TakeRetry(id)
	if err != nil {
		return session.OutputPaths{}, err
	}
	a.writerMu.Lock()
	w := a.writer
	a.writerMu.Unlock()
	paths, err := w.Write(sess)
	if err != nil {
		return session.OutputPaths{}, fmt.Errorf("app: retry write %s: %w", id, err)
	}
	return paths, nil
}

// Sessions exposes live sessions for status surfaces.
func (a *App) Sessions() []*session.Session {
	return a.registry.Live()
}

// Abandoned lists failed sessions still retained for a write retry.
func (a *App) Abandoned() []*session.Session {
	return a.registry.Retained()
}

// failingSampler stands in when procfs is unavailable. Every sample errors,
// which the governor treats as zero headroom.
type failingSampler struct{ err error }

func (f failingSampler) Sample(context.Context) (govern.Sample, error) {
	return govern.Sample{}, f.err
}
