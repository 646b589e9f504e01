// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/quillscribe/quill/pkg/provider/stt"
	"github.com/quillscribe/quill/pkg/types"
)

const defaultLanguage = "en"

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. One model per resource profile
// is loaded once at startup and shared across all sessions; each Transcribe
// call creates its own whisper context, so calls can run concurrently.
type NativeProvider struct {
	models   map[types.ResourceProfile]whisperlib.Model
	language string

	// mu serializes Close against in-flight Transcribe calls that are
	// resolving a model handle.
	mu     sync.RWMutex
	closed bool
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default recognition language code
// (e.g., "en", "hi"). Defaults to "en". A per-window language on the
// submitted Window overrides it.
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider loading the tiny-profile model from
// tinyPath and, when smallPath is non-empty, the small-profile model from
// smallPath. The tiny model is mandatory: it is the conservative fallback the
// governor degrades to, so a provider without it is useless. The caller must
// call Close when the provider is no longer needed.
func NewNative(tinyPath, smallPath string, opts ...NativeOption) (*NativeProvider, error) {
	if tinyPath == "" {
		return nil, errors.New("whisper: tiny model path must not be empty")
	}

	models := make(map[types.ResourceProfile]whisperlib.Model, 2)
	tiny, err := whisperlib.New(tinyPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load tiny model %q: %w", tinyPath, err)
	}
	models[types.ProfileTiny] = tiny

	if smallPath != "" {
		small, err := whisperlib.New(smallPath)
		if err != nil {
			tiny.Close()
			return nil, fmt.Errorf("whisper: load small model %q: %w", smallPath, err)
		}
		models[types.ProfileSmall] = small
	} else {
		slog.Warn("whisper: no small model configured, small profile will fall back to tiny")
	}

	p := &NativeProvider{
		models:   models,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases all loaded whisper models. Transcribe calls made after Close
// return stt.ErrModelUnavailable.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for profile, m := range p.models {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("whisper: close %s model: %w", profile, err))
		}
	}
	return errors.Join(errs...)
}

// Transcribe runs whisper.cpp inference over one audio window using the model
// that matches the requested profile, falling back to tiny when no small
// model is loaded. Each call uses a fresh whisper context; the model itself
// is shared and safe to use from multiple goroutines.
func (p *NativeProvider) Transcribe(ctx context.Context, w stt.Window, profile types.ResourceProfile) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(w.Samples) == 0 {
		return &stt.Result{Profile: profile}, nil
	}

	model, actual, err := p.modelFor(profile)
	if err != nil {
		return nil, err
	}

	wctx, err := model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := w.Language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}

	if err := wctx.Process(w.Samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts []string
		spans []stt.Span
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		spans = append(spans, stt.Span{
			Start: w.StartOffset + segment.Start,
			End:   w.StartOffset + segment.End,
			Text:  text,
		})
	}

	return &stt.Result{
		Text:    strings.Join(parts, " "),
		Spans:   spans,
		Profile: actual,
	}, nil
}

// modelFor resolves the model handle for a profile, degrading small to tiny
// when only the tiny model is loaded.
func (p *NativeProvider) modelFor(profile types.ResourceProfile) (whisperlib.Model, types.ResourceProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, "", stt.ErrModelUnavailable
	}
	if !profile.Valid() {
		profile = types.ProfileTiny
	}
	if m, ok := p.models[profile]; ok {
		return m, profile, nil
	}
	if m, ok := p.models[types.ProfileTiny]; ok {
		return m, types.ProfileTiny, nil
	}
	return nil, "", stt.ErrModelUnavailable
}
