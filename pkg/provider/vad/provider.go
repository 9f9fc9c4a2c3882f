// Package vad defines the Engine interface for voice-activity-detection
// backends.
//
// A VAD engine wraps a frame-level speech detector (an energy detector, a
// WebRTC-style GMM, or a neural model) and surfaces it as a stateful,
// per-stream session. Each session maintains its own internal state
// (hysteresis counters, smoothing history) so that multiple concurrent audio
// streams can be processed independently.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection
// result, so the low-latency classification stage that gates batching and
// recognition never blocks on it.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import "fmt"

// Aggressiveness selects the speech/non-speech trade-off of a detector.
// Higher levels classify more frames as non-speech: they reduce false
// positives (noise heard as speech) at the cost of clipped speech onsets.
type Aggressiveness int

const (
	// Quality favours catching all speech; most permissive.
	Quality Aggressiveness = iota

	// Balanced is the recommended default.
	Balanced

	// Aggressive rejects most background noise.
	Aggressive

	// VeryAggressive only accepts clearly voiced frames; most restrictive.
	VeryAggressive
)

// IsValid reports whether a is a recognised aggressiveness level.
func (a Aggressiveness) IsValid() bool {
	return a >= Quality && a <= VeryAggressive
}

// String returns the configuration name of the level.
func (a Aggressiveness) String() string {
	switch a {
	case Quality:
		return "quality"
	case Balanced:
		return "balanced"
	case Aggressive:
		return "aggressive"
	case VeryAggressive:
		return "very-aggressive"
	}
	return fmt.Sprintf("Aggressiveness(%d)", int(a))
}

// ParseAggressiveness converts a configuration string to an
// [Aggressiveness] level.
func ParseAggressiveness(s string) (Aggressiveness, error) {
	switch s {
	case "quality":
		return Quality, nil
	case "", "balanced":
		return Balanced, nil
	case "aggressive":
		return Aggressive, nil
	case "very-aggressive":
		return VeryAggressive, nil
	}
	return Balanced, fmt.Errorf("vad: unknown aggressiveness %q (valid: quality, balanced, aggressive, very-aggressive)", s)
}

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Most
	// detectors operate on fixed frame sizes (10, 20, or 30 ms). ProcessFrame
	// returns an error if the supplied frame does not match this size.
	FrameSizeMs int

	// Aggressiveness selects the detector's sensitivity level.
	Aggressiveness Aggressiveness
}

// Event is the result of classifying a single frame.
type Event struct {
	// Speech reports whether the frame was classified as voiced.
	Speech bool

	// Probability is the detector's speech confidence in [0, 1]. Energy
	// detectors report a normalised energy-derived score.
	Probability float64
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live engine. Each session maintains its own detection state;
// Reset clears this state without closing the session.
//
// A SessionHandle should not be shared between goroutines unless the
// implementation explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single mono float32 frame and returns the
	// detection result. The frame must match the SampleRate and FrameSizeMs
	// configured when the session was created.
	//
	// This method is designed to be called synchronously in the capture loop;
	// it must not block.
	ProcessFrame(samples []float32) (Event, error)

	// Reset clears all accumulated detection state (hysteresis counters,
	// smoothing history) without closing the session. Use this when the audio
	// stream is interrupted or restarted so stale state from the previous
	// segment cannot affect subsequent frames.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame and Reset must return errors or be no-ops. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The
	// session is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid (unsupported sample
	// rate, frame size, or aggressiveness out of range) or if the engine
	// cannot allocate resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
