// Package segment turns raw capture frames into classified audio segments.
//
// The [Classifier] computes a per-frame energy level (RMS) and a speech
// verdict. The verdict comes from a voice-activity detector session when one
// is available; if the detector fails on a frame the classifier degrades to
// a plain energy threshold for that frame so the pipeline keeps moving.
package segment

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mliane/voxpipe/pkg/audio"
	"github.com/mliane/voxpipe/pkg/provider/vad"
	"github.com/mliane/voxpipe/pkg/provider/vad/energy"
)

// fallbackThresholds maps aggressiveness to the minimum RMS treated as
// speech when the detector is unavailable. Mirrors the energy detector's
// speech-onset levels.
var fallbackThresholds = map[vad.Aggressiveness]float64{
	vad.Quality:        0.010,
	vad.Balanced:       0.015,
	vad.Aggressive:     0.025,
	vad.VeryAggressive: 0.040,
}

// Config configures a [Classifier].
type Config struct {
	// SampleRate is the pipeline sample rate in Hz.
	SampleRate int

	// FrameSizeMs is the expected frame duration in milliseconds.
	FrameSizeMs int

	// Aggressiveness selects the detection sensitivity.
	Aggressiveness vad.Aggressiveness

	// Engine is the voice-activity backend. When nil, the pure energy
	// detector is used.
	Engine vad.Engine
}

// Classifier classifies capture frames. Classify is deterministic for a
// given frame and detector state, never blocks on I/O, and never panics on
// malformed input.
//
// Classifier is not safe for concurrent use; it is owned by the single
// capture loop.
type Classifier struct {
	session   vad.SessionHandle
	threshold float64
	warnOnce  sync.Once
}

// New creates a [Classifier] from cfg. Invalid aggressiveness values are an
// error; a nil Engine falls back to the energy detector.
func New(cfg Config) (*Classifier, error) {
	if !cfg.Aggressiveness.IsValid() {
		return nil, fmt.Errorf("segment: invalid aggressiveness %d", cfg.Aggressiveness)
	}

	eng := cfg.Engine
	if eng == nil {
		eng = energy.New()
	}
	session, err := eng.NewSession(vad.Config{
		SampleRate:     cfg.SampleRate,
		FrameSizeMs:    cfg.FrameSizeMs,
		Aggressiveness: cfg.Aggressiveness,
	})
	if err != nil {
		return nil, fmt.Errorf("segment: create detector session: %w", err)
	}

	return &Classifier{
		session:   session,
		threshold: fallbackThresholds[cfg.Aggressiveness],
	}, nil
}

// Classify converts one frame into a classified segment. An empty frame
// yields a segment with no speech and zero energy.
func (c *Classifier) Classify(frame audio.Frame) audio.Segment {
	seg := audio.Segment{
		Samples:   frame.Samples,
		Timestamp: frame.Timestamp,
		Duration:  frame.Duration(),
	}
	if len(frame.Samples) == 0 {
		return seg
	}

	seg.Energy = energy.RMS(frame.Samples)

	ev, err := c.session.ProcessFrame(frame.Samples)
	if err != nil {
		c.warnOnce.Do(func() {
			slog.Warn("voice-activity detector failed, using energy threshold",
				"err", err)
		})
		seg.HasSpeech = seg.Energy >= c.threshold
		return seg
	}
	seg.HasSpeech = ev.Speech
	return seg
}

// Reset clears detector state, e.g. when capture resumes after a suspension.
func (c *Classifier) Reset() {
	c.session.Reset()
}

// Close releases the detector session.
func (c *Classifier) Close() error {
	return c.session.Close()
}
