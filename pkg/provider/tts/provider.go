// Package tts defines the Synthesizer interface for text-to-speech backends.
//
// The voxpipe core treats synthesis as an opaque blocking call: it hands over
// text and receives back the duration of the audio that was played. Playback
// itself (device output, buffering, codec) is the backend's concern. The
// returned duration feeds the echo-suppression window, so backends should
// report it as accurately as they can.
package tts

import (
	"context"
	"time"
)

// SpeechResult describes a completed synthesis.
type SpeechResult struct {
	// AudioDuration is the play time of the synthesized audio.
	AudioDuration time.Duration
}

// Synthesizer is the abstraction over any text-to-speech backend.
//
// Synthesize blocks until playback has finished (or failed); it is
// potentially slow and must be called off the capture loop.
// Implementations must be safe for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (SpeechResult, error)
}
