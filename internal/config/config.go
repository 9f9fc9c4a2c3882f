// Package config provides the configuration schema, loader, file watcher,
// and provider registry for the voxpipe speech-interaction service.
package config

import (
	"time"

	"github.com/mliane/voxpipe/internal/batch"
	"github.com/mliane/voxpipe/internal/echo"
	"github.com/mliane/voxpipe/internal/session"
)

// LogLevel controls log verbosity for the voxpipe service.
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

// Config is the root configuration structure for voxpipe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Batching  BatchingConfig  `yaml:"batching"`
	Session   SessionConfig   `yaml:"session"`
	Echo      EchoConfig      `yaml:"echo"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings for the operational
// HTTP endpoint (health probes and metrics).
type ServerConfig struct {
	// ListenAddr is the TCP address the ops server listens on (e.g., ":8080").
	// Empty disables the ops server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the ops server. When nil, it runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AudioConfig describes the capture format and the voice-activity detector.
type AudioConfig struct {
	// SampleRate is the canonical pipeline sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the capture frame duration in milliseconds. Default: 20.
	FrameMs int `yaml:"frame_ms"`

	// VADAggressiveness selects the detector sensitivity: quality, balanced,
	// aggressive, or very-aggressive. Default: balanced.
	VADAggressiveness string `yaml:"vad_aggressiveness"`
}

// BatchingConfig tunes the speech batcher. Zero fields fall back to the
// batcher's built-in defaults.
type BatchingConfig struct {
	// ShortPauseMs finalizes a batch with enough content. Default: 1000.
	ShortPauseMs int `yaml:"short_pause_ms"`

	// LongPauseMs is the base silence that finalizes any batch; it is scaled
	// up for longer batches. Default: 2000.
	LongPauseMs int `yaml:"long_pause_ms"`

	// PauseScale controls how strongly the long pause grows with batch
	// duration. Default: 1.0.
	PauseScale float64 `yaml:"pause_scale"`

	// MinSegmentMs is the floor below which speech is carried until enough
	// accumulates. Default: 100.
	MinSegmentMs int `yaml:"min_segment_ms"`

	// MaxBatchMs is the hard cap on batch audio duration. Default: 8000.
	MaxBatchMs int `yaml:"max_batch_ms"`

	// PartialInterval is the number of segments between partial recognition
	// passes. Default: 3.
	PartialInterval int `yaml:"partial_interval"`

	// PartialWindowMs is the trailing audio span sent for partial
	// recognition. Default: 2000.
	PartialWindowMs int `yaml:"partial_window_ms"`

	// QueueSize is the segment queue capacity. Default: 256.
	QueueSize int `yaml:"queue_size"`

	// Workers is the partial-recognition worker pool size. Default: 2.
	Workers int `yaml:"workers"`
}

// BatcherConfig converts the YAML block into the batcher's native config.
func (b BatchingConfig) BatcherConfig(sampleRate int) batch.Config {
	return batch.Config{
		SampleRate:    sampleRate,
		ShortPause:    msToDuration(b.ShortPauseMs),
		LongPauseBase: msToDuration(b.LongPauseMs),
		PauseScale:    b.PauseScale,
		MinSegment:    msToDuration(b.MinSegmentMs),
		MaxBatch:      msToDuration(b.MaxBatchMs),
		PartialEvery:  b.PartialInterval,
		PartialWindow: msToDuration(b.PartialWindowMs),
		QueueSize:     b.QueueSize,
		Workers:       b.Workers,
	}
}

// SessionConfig tunes the interaction state machine.
type SessionConfig struct {
	// HighConfidence is the intent confidence at or above which the
	// confirmation dialogue is skipped. Default: 0.85.
	HighConfidence float64 `yaml:"high_confidence"`

	// FuzzyThreshold is the similarity floor for global-command detection.
	// Default: 0.85.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// PositionCutoff is the sentence-position ratio at or above which a quit
	// word executes without confirmation. Default: 0.75.
	PositionCutoff float64 `yaml:"position_cutoff"`

	// MaxListenMs bounds a single listening phase. Default: 30000.
	MaxListenMs int `yaml:"max_listen_ms"`

	// TickMs is the interval of the machine's housekeeping tick, which
	// enforces the listening deadline. Default: 50.
	TickMs int `yaml:"tick_ms"`
}

// MachineConfig converts the YAML block into the state machine's native
// config.
func (s SessionConfig) MachineConfig() session.Config {
	return session.Config{
		Tick:           msToDuration(s.TickMs),
		MaxListen:      msToDuration(s.MaxListenMs),
		HighConfidence: s.HighConfidence,
		FuzzyThreshold: s.FuzzyThreshold,
		PositionCutoff: s.PositionCutoff,
	}
}

// EchoConfig tunes self-echo suppression.
type EchoConfig struct {
	// Threshold is the word-set similarity above which a transcription is
	// discarded as an echo. Default: 0.5.
	Threshold float64 `yaml:"threshold"`

	// WindowMs is how long after playback an echo can still arrive.
	// Default: 1000.
	WindowMs int `yaml:"window_ms"`
}

// SuppressorConfig converts the YAML block into the suppressor's native
// config.
func (e EchoConfig) SuppressorConfig() echo.Config {
	return echo.Config{
		Threshold: e.Threshold,
		Window:    msToDuration(e.WindowMs),
	}
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the
// [Registry]; the fallback lists build failover chains in order.
type ProvidersConfig struct {
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`

	Intent          ProviderEntry   `yaml:"intent"`
	IntentFallbacks []ProviderEntry `yaml:"intent_fallbacks"`

	Dispatch          ProviderEntry   `yaml:"dispatch"`
	DispatchFallbacks []ProviderEntry `yaml:"dispatch_fallbacks"`

	VAD     ProviderEntry `yaml:"vad"`
	Capture ProviderEntry `yaml:"capture"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above. Values may be strings, numbers, booleans,
	// or nested maps.
	Options map[string]any `yaml:"options"`
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
