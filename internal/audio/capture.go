package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/quillscribe/quill/pkg/types"
)

// ErrNoCaptureDevice is returned by Start when no usable input device exists.
// It is fatal to the owning session.
var ErrNoCaptureDevice = errors.New("audio: no capture device available")

// Source is the capability the session runner consumes. The portaudio
// Capturer implements it in production; tests push chunks straight into a
// Buffer through a fake.
type Source interface {
	// Start acquires the device(s) and begins pushing fixed-duration chunks
	// into sink until Stop is called or ctx is cancelled.
	Start(ctx context.Context, sink *Buffer) error

	// Stop halts capture immediately, closes the sink so buffered chunks
	// flush to the pipeline for a final pass, and releases the device.
	Stop()
}

// CapturerOption configures a Capturer.
type CapturerOption func(*Capturer)

// WithChunkDuration sets the fixed chunk length. Default 250ms.
func WithChunkDuration(d time.Duration) CapturerOption {
	return func(c *Capturer) {
		if d > 0 {
			c.chunkDur = d
		}
	}
}

// WithSystemAudio also captures the system loopback device (monitor,
// blackhole, vb-cable) when one is present, labelled SourceSystem.
func WithSystemAudio(enabled bool) CapturerOption {
	return func(c *Capturer) { c.systemAudio = enabled }
}

// Capturer is the portaudio-backed Source. It captures the best available
// microphone and, optionally, a system loopback device, producing mono
// float32 chunks at the configured rate.
type Capturer struct {
	sampleRate  int
	chunkDur    time.Duration
	systemAudio bool

	mu      sync.Mutex
	streams []*deviceStream
	cancel  context.CancelFunc
	sink    *Buffer
	started bool
	wg      sync.WaitGroup
}

type deviceStream struct {
	stream   *portaudio.Stream
	stopOnce sync.Once
}

// NewCapturer initializes portaudio and returns a Capturer. The caller must
// call Terminate (usually via Stop) when capture is permanently done.
func NewCapturer(sampleRate int, opts ...CapturerOption) (*Capturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initialize portaudio: %w", err)
	}
	c := &Capturer{
		sampleRate: sampleRate,
		chunkDur:   250 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Start picks devices and launches one reader goroutine per device. Chunk
// offsets are derived from the frame count, not wall time, so they stay
// monotonic and gap-free even when the scheduler hiccups.
func (c *Capturer) Start(ctx context.Context, sink *Buffer) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("audio: capturer already started")
	}
	c.started = true
	c.sink = sink
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	devices, err := portaudio.Devices()
	if err != nil {
		return c.failStart(fmt.Errorf("audio: list devices: %w", err))
	}

	var mic *portaudio.DeviceInfo
	var loopbacks []*portaudio.DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		switch classifyDevice(dev.Name) {
		case types.SourceSystem:
			if c.systemAudio {
				loopbacks = append(loopbacks, dev)
			}
		case types.SourceMic:
			if mic == nil {
				mic = dev
			}
		}
	}

	started := 0
	if mic != nil {
		if err := c.startDevice(runCtx, mic, types.SourceMic, sink); err != nil {
			slog.Warn("audio: failed to start microphone", "device", mic.Name, "err", err)
		} else {
			slog.Info("audio: capture started", "device", mic.Name, "source", types.SourceMic)
			started++
		}
	}
	for _, dev := range loopbacks {
		if err := c.startDevice(runCtx, dev, types.SourceSystem, sink); err != nil {
			slog.Warn("audio: failed to start loopback", "device", dev.Name, "err", err)
			continue
		}
		slog.Info("audio: capture started", "device", dev.Name, "source", types.SourceSystem)
		started++
	}

	if started == 0 {
		return c.failStart(ErrNoCaptureDevice)
	}
	return nil
}

// failStart unwinds a Start that brought up no device. The caller never
// invokes Stop after a failed Start, so the run context, capture state, and
// portaudio itself are all released here.
func (c *Capturer) failStart(err error) error {
	c.mu.Lock()
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.sink = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	if terr := portaudio.Terminate(); terr != nil {
		slog.Warn("audio: portaudio terminate failed", "err", terr)
	}
	return err
}

// classifyDevice labels an input device by name. Loopback/virtual devices
// carry recognizable vendor names; everything else with input channels and a
// mic-ish name is a microphone candidate.
func classifyDevice(name string) types.AudioSource {
	lower := strings.ToLower(name)
	for _, kw := range []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower", "stereo mix"} {
		if strings.Contains(lower, kw) {
			return types.SourceSystem
		}
	}
	for _, kw := range []string{"microphone", "mic", "input", "built-in", "default"} {
		if strings.Contains(lower, kw) {
			return types.SourceMic
		}
	}
	return ""
}

func (c *Capturer) startDevice(ctx context.Context, dev *portaudio.DeviceInfo, source types.AudioSource, sink *Buffer) error {
	framesPerChunk := int(float64(c.sampleRate) * c.chunkDur.Seconds())
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.sampleRate),
		FramesPerBuffer: framesPerChunk,
	}

	buf := make([]float32, framesPerChunk)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("audio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("audio: start stream: %w", err)
	}

	ds := &deviceStream{stream: stream}
	c.mu.Lock()
	c.streams = append(c.streams, ds)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ds.stop()

		var frames int64
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := stream.Read(); err != nil {
				if ctx.Err() == nil {
					slog.Debug("audio: stream read ended", "device", dev.Name, "err", err)
				}
				return
			}

			startOffset := time.Duration(frames) * time.Second / time.Duration(c.sampleRate)
			frames += int64(framesPerChunk)

			if dropped := sink.Push(types.Chunk{
				Samples:     append([]float32(nil), buf...),
				SampleRate:  c.sampleRate,
				StartOffset: startOffset,
				Duration:    c.chunkDur,
				Source:      source,
			}); dropped {
				slog.Debug("audio: consumer lagging, dropped oldest chunk", "device", dev.Name)
			}
		}
	}()

	return nil
}

// Stop halts all device streams, waits for the reader goroutines, closes the
// sink so the pipeline can drain, and terminates portaudio.
func (c *Capturer) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancel
	streams := c.streams
	c.streams = nil
	sink := c.sink
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, ds := range streams {
		ds.stop()
	}
	c.wg.Wait()
	if sink != nil {
		sink.Close()
	}
	if err := portaudio.Terminate(); err != nil {
		slog.Warn("audio: portaudio terminate failed", "err", err)
	}
}

func (d *deviceStream) stop() {
	d.stopOnce.Do(func() {
		_ = d.stream.Stop()
		_ = d.stream.Close()
	})
}

// Ensure Capturer implements Source at compile time.
var _ Source = (*Capturer)(nil)
