package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/quillscribe/quill/pkg/types"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper-native", "mock"},
	"llm": {"ollama", "llamacpp", "llamafile", "mock"},
}

// supportedLanguages are the recognition languages Quill ships models for.
// Hindi support is partial: recognition quality depends on the loaded model.
var supportedLanguages = []string{"en", "hi"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.DefaultResourceProfile != "" && !cfg.DefaultResourceProfile.Valid() {
		errs = append(errs, fmt.Errorf("default_resource_profile %q is invalid; valid values: tiny, small", cfg.DefaultResourceProfile))
	}

	for i, p := range cfg.EnabledPlatforms {
		switch p {
		case types.PlatformZoom, types.PlatformTeams, types.PlatformGoogleMeet:
		default:
			errs = append(errs, fmt.Errorf("enabled_platforms[%d] %q is invalid; valid values: zoom, teams, google-meet", i, p))
		}
	}

	if cfg.Language != "" && !slices.Contains(supportedLanguages, cfg.Language) {
		errs = append(errs, fmt.Errorf("language %q is unsupported; valid values: en, hi", cfg.Language))
	}

	if cfg.Pipeline.OverlapMs > 0 && cfg.Pipeline.WindowMs > 0 && cfg.Pipeline.OverlapMs >= cfg.Pipeline.WindowMs {
		errs = append(errs, fmt.Errorf("pipeline.overlap_ms (%d) must be smaller than pipeline.window_ms (%d)", cfg.Pipeline.OverlapMs, cfg.Pipeline.WindowMs))
	}

	if cfg.Governor.LoadHighWatermark > 0 && cfg.Governor.LoadLowWatermark > 0 &&
		cfg.Governor.LoadLowWatermark >= cfg.Governor.LoadHighWatermark {
		errs = append(errs, fmt.Errorf("governor.load_low_watermark (%.2f) must be below governor.load_high_watermark (%.2f)", cfg.Governor.LoadLowWatermark, cfg.Governor.LoadHighWatermark))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)

	if cfg.OutputDirectory == "" {
		slog.Warn("output_directory is empty; artifacts will be written to the current working directory")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; sessions will complete without summaries")
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.PollingIntervalMs > 0 && cfg.PollingIntervalMs < 500 {
		slog.Warn("polling_interval_ms is very low; detection will consume noticeable CPU", "polling_interval_ms", cfg.PollingIntervalMs)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
