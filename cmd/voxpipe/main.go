// Command voxpipe is the main entry point for the voxpipe speech pipeline.
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

	"github.com/mliane/voxpipe/internal/app"
	"github.com/mliane/voxpipe/internal/config"
	"github.com/mliane/voxpipe/internal/observe"
	"github.com/mliane/voxpipe/internal/resilience"
	"github.com/mliane/voxpipe/pkg/provider/capture"
	"github.com/mliane/voxpipe/pkg/provider/capture/redial"
	"github.com/mliane/voxpipe/pkg/provider/capture/wsstream"
	"github.com/mliane/voxpipe/pkg/provider/dispatch"
	"github.com/mliane/voxpipe/pkg/provider/dispatch/mcptool"
	"github.com/mliane/voxpipe/pkg/provider/intent"
	"github.com/mliane/voxpipe/pkg/provider/intent/llmintent"
	"github.com/mliane/voxpipe/pkg/provider/stt"
	"github.com/mliane/voxpipe/pkg/provider/stt/whisper"
	"github.com/mliane/voxpipe/pkg/provider/tts"
	"github.com/mliane/voxpipe/pkg/provider/tts/espeak"
	"github.com/mliane/voxpipe/pkg/provider/tts/piper"
	"github.com/mliane/voxpipe/pkg/provider/vad"
	"github.com/mliane/voxpipe/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// The log level is hot-reloadable; everything else that changes on disk is
	// reported by the watcher but requires a restart.
	logLevel := new(slog.LevelVar)
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxpipe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxpipe: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("voxpipe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxpipe",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg, cfg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders(providers)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("pipeline ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages. ctx is the process lifetime context;
// providers that hold connections (mcp, websocket) are bound to it.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry, cfg *config.Config) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []piper.Option
		if entry.Model != "" {
			opts = append(opts, piper.WithVoice(entry.Model))
		}
		if player := optString(entry.Options, "player"); player != "" {
			opts = append(opts, piper.WithPlayer(player))
		}
		return piper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("espeak", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []espeak.Option
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, espeak.WithVoice(voice))
		}
		if wpm := optInt(entry.Options, "speed"); wpm > 0 {
			opts = append(opts, espeak.WithSpeed(wpm))
		}
		if bin := optString(entry.Options, "binary"); bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		return espeak.New(opts...), nil
	})

	// ── Intent ────────────────────────────────────────────────────────────────

	reg.RegisterIntent("llm", func(entry config.ProviderEntry) (intent.Extractor, error) {
		backend := optString(entry.Options, "provider")
		if backend == "" {
			backend = "openai"
		}
		var llmOpts []anyllmlib.Option
		if entry.APIKey != "" {
			llmOpts = append(llmOpts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			llmOpts = append(llmOpts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		var opts []llmintent.Option
		if types := optStringSlice(entry.Options, "intent_types"); len(types) > 0 {
			opts = append(opts, llmintent.WithIntentTypes(types))
		}
		return llmintent.New(backend, entry.Model, llmOpts, opts...)
	})

	// ── Dispatch ──────────────────────────────────────────────────────────────

	reg.RegisterDispatch("mcp", func(entry config.ProviderEntry) (dispatch.Dispatcher, error) {
		if command := optString(entry.Options, "command"); command != "" {
			return mcptool.NewStdio(ctx, command)
		}
		if entry.BaseURL == "" {
			return nil, errors.New("mcp dispatcher needs base_url (http) or options.command (stdio)")
		}
		return mcptool.NewHTTP(ctx, entry.BaseURL)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Capture ───────────────────────────────────────────────────────────────

	reg.RegisterCapture("websocket", func(entry config.ProviderEntry) (capture.Device, error) {
		dial := func(ctx context.Context) (capture.Device, error) {
			return wsstream.Dial(ctx, wsstream.Config{
				URL:            entry.BaseURL,
				Encoding:       wsstream.Encoding(optString(entry.Options, "encoding")),
				SourceRate:     optInt(entry.Options, "source_rate"),
				SourceChannels: optInt(entry.Options, "source_channels"),
				TargetRate:     cfg.Audio.SampleRate,
			})
		}
		// The satellite link drops whenever the remote restarts; redial
		// keeps the pipeline alive across those drops.
		return redial.New(ctx, dial, redial.Config{
			MaxRetries: optInt(entry.Options, "max_retries"),
		})
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct. Slots with fallbacks
// configured are wrapped in a resilience chain with one circuit breaker per
// backend.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			if len(cfg.Providers.STTFallbacks) > 0 {
				chain := resilience.NewRecognizer(p, name, resilience.ChainConfig{})
				for _, fb := range cfg.Providers.STTFallbacks {
					backend, err := reg.CreateSTT(fb)
					if err != nil {
						return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
					}
					chain.AddFallback(fb.Name, backend)
				}
				ps.STT = chain
			} else {
				ps.STT = p
			}
			slog.Info("provider created", "kind", "stt", "name", name,
				"fallbacks", len(cfg.Providers.STTFallbacks))
		}
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "tts", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			if len(cfg.Providers.TTSFallbacks) > 0 {
				chain := resilience.NewSynthesizer(p, name, resilience.ChainConfig{})
				for _, fb := range cfg.Providers.TTSFallbacks {
					backend, err := reg.CreateTTS(fb)
					if err != nil {
						return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
					}
					chain.AddFallback(fb.Name, backend)
				}
				ps.TTS = chain
			} else {
				ps.TTS = p
			}
			slog.Info("provider created", "kind", "tts", "name", name,
				"fallbacks", len(cfg.Providers.TTSFallbacks))
		}
	}

	if name := cfg.Providers.Intent.Name; name != "" {
		p, err := reg.CreateIntent(cfg.Providers.Intent)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "intent", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create intent provider %q: %w", name, err)
		} else {
			if len(cfg.Providers.IntentFallbacks) > 0 {
				chain := resilience.NewExtractor(p, name, resilience.ChainConfig{})
				for _, fb := range cfg.Providers.IntentFallbacks {
					backend, err := reg.CreateIntent(fb)
					if err != nil {
						return nil, fmt.Errorf("create intent fallback %q: %w", fb.Name, err)
					}
					chain.AddFallback(fb.Name, backend)
				}
				ps.Intent = chain
			} else {
				ps.Intent = p
			}
			slog.Info("provider created", "kind", "intent", "name", name,
				"fallbacks", len(cfg.Providers.IntentFallbacks))
		}
	}

	if name := cfg.Providers.Dispatch.Name; name != "" {
		p, err := reg.CreateDispatch(cfg.Providers.Dispatch)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "dispatch", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create dispatch provider %q: %w", name, err)
		} else {
			if len(cfg.Providers.DispatchFallbacks) > 0 {
				chain := resilience.NewDispatcher(p, name, resilience.ChainConfig{})
				for _, fb := range cfg.Providers.DispatchFallbacks {
					backend, err := reg.CreateDispatch(fb)
					if err != nil {
						return nil, fmt.Errorf("create dispatch fallback %q: %w", fb.Name, err)
					}
					chain.AddFallback(fb.Name, backend)
				}
				ps.Dispatch = chain
			} else {
				ps.Dispatch = p
			}
			slog.Info("provider created", "kind", "dispatch", "name", name,
				"fallbacks", len(cfg.Providers.DispatchFallbacks))
		}
	}

	if name := cfg.Providers.VAD.Name; name != "" {
		p, err := reg.CreateVAD(cfg.Providers.VAD)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "vad", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		} else {
			ps.VAD = p
			slog.Info("provider created", "kind", "vad", "name", name)
		}
	}

	if name := cfg.Providers.Capture.Name; name != "" {
		p, err := reg.CreateCapture(cfg.Providers.Capture)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "capture", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create capture provider %q: %w", name, err)
		} else {
			ps.Capture = p
			slog.Info("provider created", "kind", "capture", "name", name)
		}
	}

	return ps, nil
}

// closeProviders releases provider resources that hold models or connections.
// The capture device is excluded: App.Shutdown closes it as part of stopping
// the pipeline.
func closeProviders(ps *app.Providers) {
	for _, p := range []any{ps.STT, ps.TTS, ps.Intent, ps.Dispatch, ps.VAD} {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxpipe — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Intent", cfg.Providers.Intent.Name, cfg.Providers.Intent.Model)
	printProvider("Dispatch", cfg.Providers.Dispatch.Name, "")
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("Capture", cfg.Providers.Capture.Name, "")
	fallbacks := len(cfg.Providers.STTFallbacks) + len(cfg.Providers.TTSFallbacks) +
		len(cfg.Providers.IntentFallbacks) + len(cfg.Providers.DispatchFallbacks)
	fmt.Printf("║  Fallbacks       : %-19d ║\n", fallbacks)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
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
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

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

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an int value from a provider Options map. YAML decodes
// whole numbers as int.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	n, _ := opts[key].(int)
	return n
}

// optStringSlice extracts a list of strings from a provider Options map.
// YAML decodes sequences as []any; non-string elements are skipped.
func optStringSlice(opts map[string]any, key string) []string {
	if opts == nil {
		return nil
	}
	raw, ok := opts[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
