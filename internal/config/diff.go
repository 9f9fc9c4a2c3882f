package config

import "fmt"

// ConfigDiff describes what changed between two configs. Only the fields
// that can be hot-reloaded without restarting the pipeline are tracked
// individually; everything else sets RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// EchoChanged is set when the echo suppression tuning changed.
	EchoChanged bool
	NewEcho     EchoConfig

	// SessionChanged is set when the state-machine thresholds changed.
	SessionChanged bool
	NewSession     SessionConfig

	// RestartRequired is set when audio format, batching, provider, or
	// server settings changed; those are fixed at pipeline construction.
	RestartRequired bool
}

// Empty reports whether the diff carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.EchoChanged && !d.SessionChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Echo != new.Echo {
		d.EchoChanged = true
		d.NewEcho = new.Echo
	}

	if old.Session != new.Session {
		d.SessionChanged = true
		d.NewSession = new.Session
	}

	if old.Audio != new.Audio ||
		old.Batching != new.Batching ||
		!providersEqual(old.Providers, new.Providers) ||
		serverRestartNeeded(old.Server, new.Server) {
		d.RestartRequired = true
	}

	return d
}

// serverRestartNeeded ignores the hot-reloadable log level.
func serverRestartNeeded(old, new ServerConfig) bool {
	if old.ListenAddr != new.ListenAddr {
		return true
	}
	switch {
	case old.TLS == nil && new.TLS == nil:
		return false
	case old.TLS == nil || new.TLS == nil:
		return true
	default:
		return *old.TLS != *new.TLS
	}
}

func providersEqual(old, new ProvidersConfig) bool {
	return entryEqual(old.STT, new.STT) &&
		entriesEqual(old.STTFallbacks, new.STTFallbacks) &&
		entryEqual(old.TTS, new.TTS) &&
		entriesEqual(old.TTSFallbacks, new.TTSFallbacks) &&
		entryEqual(old.Intent, new.Intent) &&
		entriesEqual(old.IntentFallbacks, new.IntentFallbacks) &&
		entryEqual(old.Dispatch, new.Dispatch) &&
		entriesEqual(old.DispatchFallbacks, new.DispatchFallbacks) &&
		entryEqual(old.VAD, new.VAD) &&
		entryEqual(old.Capture, new.Capture)
}

// entryEqual compares the standard fields; Options maps are compared
// shallowly by string formatting of their scalar values.
func entryEqual(old, new ProviderEntry) bool {
	if old.Name != new.Name || old.APIKey != new.APIKey ||
		old.BaseURL != new.BaseURL || old.Model != new.Model {
		return false
	}
	if len(old.Options) != len(new.Options) {
		return false
	}
	for k, v := range old.Options {
		nv, ok := new.Options[k]
		if !ok || fmt.Sprint(nv) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func entriesEqual(old, new []ProviderEntry) bool {
	if len(old) != len(new) {
		return false
	}
	for i := range old {
		if !entryEqual(old[i], new[i]) {
			return false
		}
	}
	return true
}
