package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/mliane/voxpipe/pkg/provider/vad"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":      {"whisper"},
	"tts":      {"piper", "espeak"},
	"intent":   {"llm"},
	"dispatch": {"mcp"},
	"vad":      {"energy"},
	"capture":  {"websocket"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
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

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	switch cfg.Audio.FrameMs {
	case 0, 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: 10, 20, 30", cfg.Audio.FrameMs))
	}
	if _, err := vad.ParseAggressiveness(cfg.Audio.VADAggressiveness); err != nil {
		errs = append(errs, fmt.Errorf("audio.vad_aggressiveness: %w", err))
	}

	// Batching
	b := cfg.Batching
	for _, f := range []struct {
		name  string
		value int
	}{
		{"batching.short_pause_ms", b.ShortPauseMs},
		{"batching.long_pause_ms", b.LongPauseMs},
		{"batching.min_segment_ms", b.MinSegmentMs},
		{"batching.max_batch_ms", b.MaxBatchMs},
		{"batching.partial_interval", b.PartialInterval},
		{"batching.partial_window_ms", b.PartialWindowMs},
		{"batching.queue_size", b.QueueSize},
		{"batching.workers", b.Workers},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", f.name, f.value))
		}
	}
	if b.ShortPauseMs > 0 && b.LongPauseMs > 0 && b.ShortPauseMs >= b.LongPauseMs {
		errs = append(errs, fmt.Errorf("batching.short_pause_ms %d must be below batching.long_pause_ms %d", b.ShortPauseMs, b.LongPauseMs))
	}
	if b.MinSegmentMs > 0 && b.MaxBatchMs > 0 && b.MinSegmentMs >= b.MaxBatchMs {
		errs = append(errs, fmt.Errorf("batching.min_segment_ms %d must be below batching.max_batch_ms %d", b.MinSegmentMs, b.MaxBatchMs))
	}
	if b.PauseScale < 0 {
		errs = append(errs, fmt.Errorf("batching.pause_scale %.2f must not be negative", b.PauseScale))
	}

	// Session
	s := cfg.Session
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"session.high_confidence", s.HighConfidence},
		{"session.fuzzy_threshold", s.FuzzyThreshold},
		{"session.position_cutoff", s.PositionCutoff},
	} {
		if f.value < 0 || f.value > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", f.name, f.value))
		}
	}
	if s.MaxListenMs < 0 {
		errs = append(errs, fmt.Errorf("session.max_listen_ms %d must not be negative", s.MaxListenMs))
	}
	if s.TickMs < 0 {
		errs = append(errs, fmt.Errorf("session.tick_ms %d must not be negative", s.TickMs))
	}

	// Echo
	if cfg.Echo.Threshold < 0 || cfg.Echo.Threshold > 1 {
		errs = append(errs, fmt.Errorf("echo.threshold %.2f is out of range [0, 1]", cfg.Echo.Threshold))
	}
	if cfg.Echo.WindowMs < 0 {
		errs = append(errs, fmt.Errorf("echo.window_ms %d must not be negative", cfg.Echo.WindowMs))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	for _, e := range cfg.Providers.STTFallbacks {
		validateProviderName("stt", e.Name)
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for _, e := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", e.Name)
	}
	validateProviderName("intent", cfg.Providers.Intent.Name)
	for _, e := range cfg.Providers.IntentFallbacks {
		validateProviderName("intent", e.Name)
	}
	validateProviderName("dispatch", cfg.Providers.Dispatch.Name)
	for _, e := range cfg.Providers.DispatchFallbacks {
		validateProviderName("dispatch", e.Name)
	}
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("capture", cfg.Providers.Capture.Name)

	// Fallbacks without a primary are almost certainly a mistake.
	if cfg.Providers.STT.Name == "" && len(cfg.Providers.STTFallbacks) > 0 {
		errs = append(errs, errors.New("providers.stt_fallbacks configured without a primary providers.stt"))
	}
	if cfg.Providers.TTS.Name == "" && len(cfg.Providers.TTSFallbacks) > 0 {
		errs = append(errs, errors.New("providers.tts_fallbacks configured without a primary providers.tts"))
	}
	if cfg.Providers.Intent.Name == "" && len(cfg.Providers.IntentFallbacks) > 0 {
		errs = append(errs, errors.New("providers.intent_fallbacks configured without a primary providers.intent"))
	}
	if cfg.Providers.Dispatch.Name == "" && len(cfg.Providers.DispatchFallbacks) > 0 {
		errs = append(errs, errors.New("providers.dispatch_fallbacks configured without a primary providers.dispatch"))
	}

	// Provider availability warnings.
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; transcription will be unavailable")
	}
	if cfg.Providers.Intent.Name == "" {
		slog.Warn("no intent provider configured; utterances cannot be classified")
	}

	return errors.Join(errs...)
}

// Aggressiveness returns the parsed VAD aggressiveness level. Call after
// [Validate]; an unparseable value falls back to the default.
func (a AudioConfig) Aggressiveness() vad.Aggressiveness {
	level, err := vad.ParseAggressiveness(a.VADAggressiveness)
	if err != nil {
		return vad.Balanced
	}
	return level
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
