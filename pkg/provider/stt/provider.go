// Package stt defines the Recognizer interface for speech-to-text backends.
//
// Unlike streaming transcription APIs, the voxpipe core performs its own
// segmentation and batching, so the recognizer contract is a single blocking
// call over a complete audio buffer. The batcher invokes it twice per
// utterance lifecycle: cheap low-latency calls over a trailing window for
// partial feedback, and one high-accuracy call (with alignment requested)
// over the full accumulated audio at finalization.
//
// Recognize calls are potentially slow and must run off the capture loop;
// implementations must be safe for concurrent use so partial and final
// requests can overlap.
package stt

import "context"

// RecognizeOptions controls a single recognition request.
type RecognizeOptions struct {
	// Alignment requests higher-accuracy decoding with token-level
	// timestamps. Final transcriptions set this; partials do not.
	Alignment bool

	// Language is the BCP-47 language hint (e.g., "fr", "en-US"). Empty lets
	// the backend auto-detect, if supported.
	Language string
}

// Transcript is the result of a recognition request.
type Transcript struct {
	// Text is the recognised text, possibly empty for silence-only audio.
	Text string

	// Confidence is the backend's overall confidence in [0, 1]. Backends
	// without a native score report 0.
	Confidence float64

	// IsFinal reports whether this transcript came from a final (aligned)
	// request. Set by the caller's request, echoed here for convenience.
	IsFinal bool

	// Words carries token-level timing when alignment was requested.
	// Nil otherwise.
	Words []WordTiming
}

// WordTiming is the time placement of a single recognised token, relative to
// the start of the submitted audio.
type WordTiming struct {
	Word  string
	Start float64 // seconds
	End   float64 // seconds
}

// Recognizer is the abstraction over any speech-to-text backend.
//
// Implementations must be safe for concurrent use.
type Recognizer interface {
	// Recognize transcribes the given mono float32 PCM samples. The sample
	// rate is fixed per backend construction. Returns the transcript, or an
	// error on backend failure; a silence-only buffer yields an empty
	// transcript and a nil error.
	Recognize(ctx context.Context, samples []float32, opts RecognizeOptions) (Transcript, error)
}
