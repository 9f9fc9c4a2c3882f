// Package audio defines the core audio data types flowing through the
// voxpipe pipeline, plus small format-conversion helpers shared by capture
// backends.
//
// The pipeline works on mono float32 PCM throughout. Capture backends that
// deliver device-native formats (int16 bytes, stereo, other sample rates)
// convert at the edge using [FormatConverter] so every later stage can assume
// a single canonical format.
package audio

import "time"

// Frame is a single fixed-duration chunk of captured audio. Frames are the
// atomic transport unit between the capture device and the segment
// classifier. A frame is immutable once captured; ownership passes to
// whichever stage currently processes it.
type Frame struct {
	// Samples is mono float32 PCM in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz (e.g., 16000).
	SampleRate int

	// Timestamp is the wall-clock capture time of the first sample.
	Timestamp time.Time
}

// Duration returns the play time of the frame. Zero when SampleRate is unset.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Segment is a classified span of audio produced by the segment classifier
// from one frame. It carries the speech verdict and energy measurement used
// by the batcher's pause heuristics. Segments are consumed and discarded by
// the batcher; no stage retains them beyond its own processing step.
type Segment struct {
	// Samples is the mono float32 PCM of the underlying frame.
	Samples []float32

	// Timestamp is the capture time of the first sample.
	Timestamp time.Time

	// Duration is the play time of Samples.
	Duration time.Duration

	// HasSpeech reports the voice-activity verdict for this segment.
	HasSpeech bool

	// Energy is the root-mean-square level of Samples, in [0, 1].
	Energy float64
}
