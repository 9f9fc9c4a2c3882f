package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mliane/voxpipe/internal/config"
	"github.com/mliane/voxpipe/pkg/provider/capture"
	"github.com/mliane/voxpipe/pkg/provider/dispatch"
	"github.com/mliane/voxpipe/pkg/provider/intent"
	"github.com/mliane/voxpipe/pkg/provider/stt"
	"github.com/mliane/voxpipe/pkg/provider/tts"
	"github.com/mliane/voxpipe/pkg/provider/vad"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info

audio:
  sample_rate: 16000
  frame_ms: 20
  vad_aggressiveness: balanced

batching:
  short_pause_ms: 1000
  long_pause_ms: 2000
  pause_scale: 1.0
  min_segment_ms: 100
  max_batch_ms: 8000
  partial_interval: 3
  partial_window_ms: 2000

session:
  high_confidence: 0.85
  fuzzy_threshold: 0.85
  position_cutoff: 0.75
  max_listen_ms: 30000
  tick_ms: 50

echo:
  threshold: 0.5
  window_ms: 1000

providers:
  stt:
    name: whisper
    api_key: wk-test
    model: whisper-1
  stt_fallbacks:
    - name: whisper
      base_url: http://backup:9000
  tts:
    name: piper
  intent:
    name: llm
    api_key: sk-test
    model: gpt-4o-mini
  dispatch:
    name: mcp
    options:
      transport: stdio
      command: /usr/local/bin/home-tools
  vad:
    name: energy
  capture:
    name: websocket
    base_url: ws://mic-gateway:7000/stream
`

// ── YAML loading ─────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("audio.sample_rate: got %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Batching.MaxBatchMs != 8000 {
		t.Errorf("batching.max_batch_ms: got %d, want 8000", cfg.Batching.MaxBatchMs)
	}
	if cfg.Session.HighConfidence != 0.85 {
		t.Errorf("session.high_confidence: got %.2f, want 0.85", cfg.Session.HighConfidence)
	}
	if cfg.Providers.STT.Name != "whisper" {
		t.Errorf("providers.stt.name: got %q, want %q", cfg.Providers.STT.Name, "whisper")
	}
	if len(cfg.Providers.STTFallbacks) != 1 {
		t.Fatalf("providers.stt_fallbacks: got %d, want 1", len(cfg.Providers.STTFallbacks))
	}
	if got := cfg.Providers.STTFallbacks[0].BaseURL; got != "http://backup:9000" {
		t.Errorf("providers.stt_fallbacks[0].base_url: got %q", got)
	}
	if got := cfg.Providers.Dispatch.Options["transport"]; got != "stdio" {
		t.Errorf("providers.dispatch.options.transport: got %v, want stdio", got)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	// An empty config should succeed (no required top-level fields).
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("bananas: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

// ── validation ───────────────────────────────────────────────────────────────

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantSub string
	}{
		{
			name:    "invalid log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "loud" },
			wantSub: "server.log_level",
		},
		{
			name:    "tls missing key file",
			mutate:  func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "/tmp/cert.pem"} },
			wantSub: "server.tls",
		},
		{
			name:    "invalid frame duration",
			mutate:  func(c *config.Config) { c.Audio.FrameMs = 25 },
			wantSub: "audio.frame_ms",
		},
		{
			name:    "invalid aggressiveness",
			mutate:  func(c *config.Config) { c.Audio.VADAggressiveness = "furious" },
			wantSub: "audio.vad_aggressiveness",
		},
		{
			name:    "negative pause",
			mutate:  func(c *config.Config) { c.Batching.ShortPauseMs = -1 },
			wantSub: "batching.short_pause_ms",
		},
		{
			name: "short pause above long pause",
			mutate: func(c *config.Config) {
				c.Batching.ShortPauseMs = 3000
				c.Batching.LongPauseMs = 2000
			},
			wantSub: "must be below batching.long_pause_ms",
		},
		{
			name: "min segment above max batch",
			mutate: func(c *config.Config) {
				c.Batching.MinSegmentMs = 9000
				c.Batching.MaxBatchMs = 8000
			},
			wantSub: "must be below batching.max_batch_ms",
		},
		{
			name:    "confidence out of range",
			mutate:  func(c *config.Config) { c.Session.HighConfidence = 1.5 },
			wantSub: "session.high_confidence",
		},
		{
			name:    "negative tick",
			mutate:  func(c *config.Config) { c.Session.TickMs = -10 },
			wantSub: "session.tick_ms",
		},
		{
			name:    "echo threshold out of range",
			mutate:  func(c *config.Config) { c.Echo.Threshold = -0.1 },
			wantSub: "echo.threshold",
		},
		{
			name: "fallbacks without primary",
			mutate: func(c *config.Config) {
				c.Providers.STT = config.ProviderEntry{}
				c.Providers.STTFallbacks = []config.ProviderEntry{{Name: "whisper"}}
			},
			wantSub: "stt_fallbacks",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
			if err != nil {
				t.Fatalf("sample config failed to load: %v", err)
			}
			tc.mutate(cfg)
			err = config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Audio.FrameMs = 25
	cfg.Echo.Threshold = 2

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, sub := range []string{"server.log_level", "audio.frame_ms", "echo.threshold"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("joined error %q does not mention %q", err, sub)
		}
	}
}

// ── conversions ──────────────────────────────────────────────────────────────

func TestBatchingConfig_BatcherConfig(t *testing.T) {
	b := config.BatchingConfig{
		ShortPauseMs:    1500,
		LongPauseMs:     3000,
		PauseScale:      0.5,
		MinSegmentMs:    120,
		MaxBatchMs:      6000,
		PartialInterval: 4,
		PartialWindowMs: 2500,
		QueueSize:       128,
		Workers:         3,
	}

	got := b.BatcherConfig(16000)
	if got.SampleRate != 16000 {
		t.Errorf("SampleRate: got %d, want 16000", got.SampleRate)
	}
	if got.ShortPause != 1500*time.Millisecond {
		t.Errorf("ShortPause: got %v", got.ShortPause)
	}
	if got.LongPauseBase != 3*time.Second {
		t.Errorf("LongPauseBase: got %v", got.LongPauseBase)
	}
	if got.MaxBatch != 6*time.Second {
		t.Errorf("MaxBatch: got %v", got.MaxBatch)
	}
	if got.PartialEvery != 4 || got.Workers != 3 || got.QueueSize != 128 {
		t.Errorf("counts: got %+v", got)
	}
}

func TestSessionConfig_MachineConfig(t *testing.T) {
	s := config.SessionConfig{
		HighConfidence: 0.9,
		FuzzyThreshold: 0.8,
		PositionCutoff: 0.7,
		MaxListenMs:    20000,
		TickMs:         25,
	}

	got := s.MachineConfig()
	if got.Tick != 25*time.Millisecond {
		t.Errorf("Tick: got %v, want 25ms", got.Tick)
	}
	if got.MaxListen != 20*time.Second {
		t.Errorf("MaxListen: got %v", got.MaxListen)
	}
	if got.HighConfidence != 0.9 || got.FuzzyThreshold != 0.8 || got.PositionCutoff != 0.7 {
		t.Errorf("thresholds: got %+v", got)
	}
}

func TestAudioConfig_Aggressiveness(t *testing.T) {
	tests := []struct {
		in   string
		want vad.Aggressiveness
	}{
		{"", vad.Balanced},
		{"quality", vad.Quality},
		{"aggressive", vad.Aggressive},
		{"very-aggressive", vad.VeryAggressive},
		{"furious", vad.Balanced}, // rejected by Validate; parse falls back
	}
	for _, tc := range tests {
		a := config.AudioConfig{VADAggressiveness: tc.in}
		if got := a.Aggressiveness(); got != tc.want {
			t.Errorf("Aggressiveness(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateRegistered(t *testing.T) {
	r := config.NewRegistry()
	r.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Recognizer, error) {
		if e.Model != "whisper-1" {
			t.Errorf("factory received model %q, want whisper-1", e.Model)
		}
		return nil, nil
	})

	if _, err := r.CreateSTT(config.ProviderEntry{Name: "whisper", Model: "whisper-1"}); err != nil {
		t.Fatalf("CreateSTT: unexpected error: %v", err)
	}
}

func TestRegistry_CreateUnregistered(t *testing.T) {
	r := config.NewRegistry()
	r.RegisterTTS("piper", func(config.ProviderEntry) (tts.Synthesizer, error) { return nil, nil })
	r.RegisterIntent("llm", func(config.ProviderEntry) (intent.Extractor, error) { return nil, nil })
	r.RegisterDispatch("mcp", func(config.ProviderEntry) (dispatch.Dispatcher, error) { return nil, nil })
	r.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) { return nil, nil })
	r.RegisterCapture("websocket", func(config.ProviderEntry) (capture.Device, error) { return nil, nil })

	for _, tc := range []struct {
		kind string
		call func() error
	}{
		{"stt", func() error { _, err := r.CreateSTT(config.ProviderEntry{Name: "nope"}); return err }},
		{"tts", func() error { _, err := r.CreateTTS(config.ProviderEntry{Name: "nope"}); return err }},
		{"intent", func() error { _, err := r.CreateIntent(config.ProviderEntry{Name: "nope"}); return err }},
		{"dispatch", func() error { _, err := r.CreateDispatch(config.ProviderEntry{Name: "nope"}); return err }},
		{"vad", func() error { _, err := r.CreateVAD(config.ProviderEntry{Name: "nope"}); return err }},
		{"capture", func() error { _, err := r.CreateCapture(config.ProviderEntry{Name: "nope"}); return err }},
	} {
		if err := tc.call(); !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("%s: got %v, want ErrProviderNotRegistered", tc.kind, err)
		}
	}
}
