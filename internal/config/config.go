// Package config provides the configuration schema, loader, file watcher,
// and provider registry for the Quill meeting scribe.
package config

import (
	"time"

	"github.com/quillscribe/quill/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Quill.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Defaults to info.
	LogLevel LogLevel `yaml:"log_level"`

	// OutputDirectory is where transcript and summary files are written.
	OutputDirectory string `yaml:"output_directory"`

	// EnabledPlatforms restricts detection to a subset of the supported
	// platforms. Empty means all platforms are enabled.
	EnabledPlatforms []types.Platform `yaml:"enabled_platforms"`

	// PollingIntervalMs is the detection loop poll period. Defaults to 2000.
	PollingIntervalMs int `yaml:"polling_interval_ms"`

	// ConsentTimeoutMs bounds the consent prompt wait. A timeout disables
	// the session. Defaults to 30000.
	ConsentTimeoutMs int `yaml:"consent_timeout_ms"`

	// DefaultResourceProfile is the model-size tier sessions start with.
	// Defaults to tiny.
	DefaultResourceProfile types.ResourceProfile `yaml:"default_resource_profile"`

	// Language is the recognition language code ("en", or "hi" with partial
	// support). Defaults to en.
	Language string `yaml:"language"`

	// ListenAddr is the local TCP address serving the consent/status
	// WebSocket, /metrics, and health endpoints. Empty disables the listener
	// (consent then requires a prompter supplied in code, as tests do).
	ListenAddr string `yaml:"listen_addr"`

	Audio     AudioConfig     `yaml:"audio"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Governor  GovernorConfig  `yaml:"governor"`
	Summary   SummaryConfig   `yaml:"summary"`
	Providers ProvidersConfig `yaml:"providers"`
}

// AudioConfig tunes the capture service.
type AudioConfig struct {
	// SampleRate in Hz. Defaults to 16000, the rate local whisper models expect.
	SampleRate int `yaml:"sample_rate"`

	// ChunkMs is the fixed duration of each captured chunk. Defaults to 250.
	ChunkMs int `yaml:"chunk_ms"`

	// BufferChunks is the bounded buffer capacity between capture and the
	// pipeline. Defaults to 64.
	BufferChunks int `yaml:"buffer_chunks"`

	// GraceMs is how long capture blocks on a full buffer before dropping
	// the oldest chunk and recording a gap. Defaults to 500.
	GraceMs int `yaml:"grace_ms"`

	// CaptureSystemAudio additionally captures the system loopback device
	// when one is available. Defaults to false.
	CaptureSystemAudio bool `yaml:"capture_system_audio"`
}

// ChunkDuration returns the chunk length, defaulted.
func (a AudioConfig) ChunkDuration() time.Duration {
	if a.ChunkMs <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(a.ChunkMs) * time.Millisecond
}

// Grace returns the backpressure grace window, defaulted.
func (a AudioConfig) Grace() time.Duration {
	if a.GraceMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(a.GraceMs) * time.Millisecond
}

// Capacity returns the bounded buffer size, defaulted.
func (a AudioConfig) Capacity() int {
	if a.BufferChunks <= 0 {
		return 64
	}
	return a.BufferChunks
}

// Rate returns the sample rate, defaulted.
func (a AudioConfig) Rate() int {
	if a.SampleRate <= 0 {
		return 16000
	}
	return a.SampleRate
}

// PipelineConfig tunes the transcription pipeline coordinator.
type PipelineConfig struct {
	// WindowMs is the recognition window length W. Defaults to 4000.
	WindowMs int `yaml:"window_ms"`

	// OverlapMs is the window overlap O, chosen to avoid truncating words at
	// window boundaries. Defaults to 500. Must be smaller than WindowMs.
	OverlapMs int `yaml:"overlap_ms"`

	// MaxQueueDepth bounds the per-session FIFO of windows waiting for a
	// recognition slot; beyond it the oldest queued window becomes a gap.
	// Defaults to 32.
	MaxQueueDepth int `yaml:"max_queue_depth"`

	// MaxConcurrentRecognitions is the global ceiling on in-flight
	// recognition calls across all sessions. Defaults to 2.
	MaxConcurrentRecognitions int `yaml:"max_concurrent_recognitions"`

	// FailureThreshold is the number of consecutive window failures that
	// escalates to session-level failure. Defaults to 5.
	FailureThreshold int `yaml:"failure_threshold"`

	// FinalizeTimeoutMs caps the synchronous queue drain when a session
	// finalizes. Defaults to 120000.
	FinalizeTimeoutMs int `yaml:"finalize_timeout_ms"`
}

// Window returns the recognition window length W, defaulted.
func (p PipelineConfig) Window() time.Duration {
	if p.WindowMs <= 0 {
		return 4 * time.Second
	}
	return time.Duration(p.WindowMs) * time.Millisecond
}

// Overlap returns the window overlap O, defaulted.
func (p PipelineConfig) Overlap() time.Duration {
	if p.OverlapMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(p.OverlapMs) * time.Millisecond
}

// QueueDepth returns the FIFO bound, defaulted.
func (p PipelineConfig) QueueDepth() int {
	if p.MaxQueueDepth <= 0 {
		return 32
	}
	return p.MaxQueueDepth
}

// Ceiling returns the global recognition concurrency ceiling, defaulted.
func (p PipelineConfig) Ceiling() int {
	if p.MaxConcurrentRecognitions <= 0 {
		return 2
	}
	return p.MaxConcurrentRecognitions
}

// Threshold returns the consecutive-failure escalation threshold, defaulted.
func (p PipelineConfig) Threshold() int {
	if p.FailureThreshold <= 0 {
		return 5
	}
	return p.FailureThreshold
}

// FinalizeTimeout returns the drain deadline, defaulted.
func (p PipelineConfig) FinalizeTimeout() time.Duration {
	if p.FinalizeTimeoutMs <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(p.FinalizeTimeoutMs) * time.Millisecond
}

// GovernorConfig tunes the resource governor.
type GovernorConfig struct {
	// SampleIntervalMs is the load sampling period. Defaults to 5000.
	SampleIntervalMs int `yaml:"sample_interval_ms"`

	// UpgradeDwellMs is how long load must stay below the low watermark
	// before an upgrade to the small profile is allowed. Defaults to 30000.
	UpgradeDwellMs int `yaml:"upgrade_dwell_ms"`

	// LoadHighWatermark triggers an immediate downgrade to tiny when the
	// normalized load rises above it. Defaults to 0.8.
	LoadHighWatermark float64 `yaml:"load_high_watermark"`

	// LoadLowWatermark is the hysteresis threshold load must stay below for
	// the dwell time before upgrading. Defaults to 0.5.
	LoadLowWatermark float64 `yaml:"load_low_watermark"`
}

// SampleInterval returns the sampling period, defaulted.
func (g GovernorConfig) SampleInterval() time.Duration {
	if g.SampleIntervalMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(g.SampleIntervalMs) * time.Millisecond
}

// UpgradeDwell returns the upgrade dwell time, defaulted.
func (g GovernorConfig) UpgradeDwell() time.Duration {
	if g.UpgradeDwellMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.UpgradeDwellMs) * time.Millisecond
}

// HighWatermark returns the downgrade threshold, defaulted.
func (g GovernorConfig) HighWatermark() float64 {
	if g.LoadHighWatermark <= 0 {
		return 0.8
	}
	return g.LoadHighWatermark
}

// LowWatermark returns the upgrade hysteresis threshold, defaulted.
func (g GovernorConfig) LowWatermark() float64 {
	if g.LoadLowWatermark <= 0 {
		return 0.5
	}
	return g.LoadLowWatermark
}

// SummaryConfig tunes the summarization dispatcher.
type SummaryConfig struct {
	// MinTranscriptRunes is the length below which summarization is skipped
	// and the session completes transcript-only. Defaults to 80.
	MinTranscriptRunes int `yaml:"min_transcript_runes"`
}

// MinRunes returns the skip threshold, defaulted.
func (s SummaryConfig) MinRunes() int {
	if s.MinTranscriptRunes <= 0 {
		return 80
	}
	return s.MinTranscriptRunes
}

// ProvidersConfig declares which provider implementation to use for each
// model kind. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper-native", "ollama").
	Name string `yaml:"name"`

	// BaseURL overrides the provider's default local endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "llama3.2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// StringOption returns the named option as a string, or "" when absent or of
// another type.
func (e ProviderEntry) StringOption(key string) string {
	v, ok := e.Options[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// PollingInterval returns the detection poll period, defaulted.
func (c *Config) PollingInterval() time.Duration {
	if c.PollingIntervalMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.PollingIntervalMs) * time.Millisecond
}

// ConsentTimeout returns the consent wait bound, defaulted.
func (c *Config) ConsentTimeout() time.Duration {
	if c.ConsentTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ConsentTimeoutMs) * time.Millisecond
}

// Profile returns the starting resource profile, defaulted.
func (c *Config) Profile() types.ResourceProfile {
	if !c.DefaultResourceProfile.Valid() {
		return types.ProfileTiny
	}
	return c.DefaultResourceProfile
}

// PlatformEnabled reports whether detection should act on the given platform.
// An empty EnabledPlatforms list enables everything.
func (c *Config) PlatformEnabled(p types.Platform) bool {
	if len(c.EnabledPlatforms) == 0 {
		return true
	}
	for _, e := range c.EnabledPlatforms {
		if e == p {
			return true
		}
	}
	return false
}
