package config_test

import (
	"testing"

	"github.com/mliane/voxpipe/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Audio:  config.AudioConfig{SampleRate: 16000, FrameMs: 20},
		Echo:   config.EchoConfig{Threshold: 0.5, WindowMs: 1000},
		Session: config.SessionConfig{
			HighConfidence: 0.85,
			FuzzyThreshold: 0.85,
			PositionCutoff: 0.75,
			MaxListenMs:    30000,
		},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "whisper", Model: "whisper-1"},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if !d.Empty() {
		t.Fatalf("diff of identical configs is not empty: %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff: %+v", d)
	}
	if d.RestartRequired {
		t.Error("log level change flagged as restart-required")
	}
}

func TestDiff_EchoAndSession(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Echo.Threshold = 0.6
	new.Session.HighConfidence = 0.9

	d := config.Diff(old, new)
	if !d.EchoChanged || d.NewEcho.Threshold != 0.6 {
		t.Errorf("echo diff: %+v", d)
	}
	if !d.SessionChanged || d.NewSession.HighConfidence != 0.9 {
		t.Errorf("session diff: %+v", d)
	}
	if d.RestartRequired {
		t.Error("hot-reloadable changes flagged as restart-required")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"sample rate", func(c *config.Config) { c.Audio.SampleRate = 48000 }},
		{"batching", func(c *config.Config) { c.Batching.MaxBatchMs = 4000 }},
		{"provider model", func(c *config.Config) { c.Providers.STT.Model = "whisper-2" }},
		{"provider options", func(c *config.Config) {
			c.Providers.STT.Options = map[string]any{"language": "fr"}
		}},
		{"fallback added", func(c *config.Config) {
			c.Providers.STTFallbacks = []config.ProviderEntry{{Name: "whisper"}}
		}},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }},
		{"tls added", func(c *config.Config) {
			c.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			old := baseConfig()
			new := baseConfig()
			tc.mutate(new)

			d := config.Diff(old, new)
			if !d.RestartRequired {
				t.Errorf("change %q not flagged as restart-required: %+v", tc.name, d)
			}
		})
	}
}
