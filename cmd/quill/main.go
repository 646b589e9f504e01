// Command quill is the local meeting scribe daemon: it watches for meeting
// apps, asks for consent, and turns meeting audio into transcript and
// summary files on disk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/quillscribe/quill/internal/app"
	"github.com/quillscribe/quill/internal/config"
	"github.com/quillscribe/quill/internal/observe"
	"github.com/quillscribe/quill/pkg/provider/llm"
	"github.com/quillscribe/quill/pkg/provider/llm/anyllm"
	llmmock "github.com/quillscribe/quill/pkg/provider/llm/mock"
	"github.com/quillscribe/quill/pkg/provider/stt"
	sttmock "github.com/quillscribe/quill/pkg/provider/stt/mock"
	"github.com/quillscribe/quill/pkg/provider/stt/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "quill: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "quill: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.LogLevel))
	slog.SetDefault(newLogger(os.Stderr, level))

	slog.Info("quill starting",
		"config", *configPath,
		"output_dir", cfg.OutputDirectory,
		"log_level", cfg.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "quill",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sdCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, closeProviders, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(prev, next *config.Config) {
		diff := config.Diff(prev, next)
		if diff.Empty() {
			slog.Debug("config changed, nothing hot-reloadable")
			return
		}
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if err := application.ApplyConfig(next); err != nil {
			slog.Error("config reload rejected", "err", err)
		}
	})
	if err != nil {
		slog.Warn("config hot reload unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("quill ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, finalizing live sessions…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped at build time via -ldflags.
var version = "dev"

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with Quill
// into reg. Everything here runs on the local machine; there are no hosted
// backends to register.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	// whisper-native loads ggml model files in-process. The tiny model is
	// required; the small model is optional and only used when the governor
	// grants the small profile.
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		tinyPath := entry.StringOption("tiny_model_path")
		if tinyPath == "" {
			tinyPath = entry.Model
		}
		smallPath := entry.StringOption("small_model_path")
		var opts []whisper.NativeOption
		if lang := entry.StringOption("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(tinyPath, smallPath, opts...)
	})

	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// ollama, llamacpp and llamafile are all local servers speaking their own
	// flavour of the completions API; any-llm-go bridges them.
	for _, providerName := range []string{"ollama", "llamacpp", "llamafile"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
}

// buildProviders instantiates the providers named in cfg. The returned
// cleanup releases any that hold OS resources (loaded whisper models).
func buildProviders(cfg *config.Config, reg *config.Registry) (app.Providers, func(), error) {
	var ps app.Providers
	var closers []func() error

	sttProvider, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return ps, nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	if c, ok := sttProvider.(io.Closer); ok {
		closers = append(closers, c.Close)
	}
	ps.STT = observe.InstrumentSTT(sttProvider, observe.DefaultMetrics())
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return ps, nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}
	return ps, cleanup, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Quill — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printField("Output dir", cfg.OutputDirectory)
	printField("Language", cfg.Language)
	printField("Profile", string(cfg.Profile()))
	if len(cfg.EnabledPlatforms) == 0 {
		printField("Platforms", "all")
	} else {
		printField("Platforms", fmt.Sprintf("%d enabled", len(cfg.EnabledPlatforms)))
	}
	if cfg.ListenAddr != "" {
		printField("Listen addr", cfg.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printField(kind, value)
}

func printField(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
