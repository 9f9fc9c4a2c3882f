// Package energy implements a pure-Go voice activity detector based on RMS
// energy levels with hysteresis.
//
// The detector compares each frame's root-mean-square level against a pair of
// thresholds: a speech threshold to enter the voiced state and a lower
// silence threshold to leave it. Hysteresis (a required run of consecutive
// frames before switching state) prevents flickering between speech and
// silence on noisy input.
//
// The energy detector is the minimum viable fallback when no model-based
// engine is available. It works acceptably in quiet rooms; in noisy
// environments a dedicated model should be preferred.
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/mliane/voxpipe/pkg/provider/vad"
)

// thresholds holds the per-aggressiveness tuning of the detector.
// Values are RMS levels for normalised float32 PCM and were tuned against
// 16 kHz speech recordings; they scale with input gain, not sample rate.
type thresholds struct {
	speech  float64 // RMS level to enter the voiced state
	silence float64 // RMS level to leave it
	onRun   int     // consecutive speech frames required to enter
	offRun  int     // consecutive silence frames required to leave
}

// levelTable maps each aggressiveness level to its thresholds. Higher levels
// demand more energy and a longer onset run before declaring speech.
var levelTable = map[vad.Aggressiveness]thresholds{
	vad.Quality:        {speech: 0.010, silence: 0.005, onRun: 1, offRun: 4},
	vad.Balanced:       {speech: 0.015, silence: 0.008, onRun: 2, offRun: 3},
	vad.Aggressive:     {speech: 0.025, silence: 0.012, onRun: 3, offRun: 2},
	vad.VeryAggressive: {speech: 0.040, silence: 0.020, onRun: 4, offRun: 2},
}

// Engine creates energy-detector sessions. The zero value is ready to use.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New returns a new energy VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession creates a detector session for a single stream.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: frame size %d ms is invalid", cfg.FrameSizeMs)
	}
	if !cfg.Aggressiveness.IsValid() {
		return nil, fmt.Errorf("energy: aggressiveness %d is out of range", cfg.Aggressiveness)
	}

	return &session{
		frameSamples: cfg.SampleRate * cfg.FrameSizeMs / 1000,
		th:           levelTable[cfg.Aggressiveness],
	}, nil
}

// session is the per-stream detector state. Not safe for concurrent use, per
// the vad.SessionHandle contract.
type session struct {
	mu           sync.Mutex
	frameSamples int
	th           thresholds

	inSpeech     bool
	speechCount  int
	silenceCount int
	closed       bool
}

var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame classifies one frame. Empty frames are classified as silence
// without error so the pipeline never stalls on degenerate capture reads.
func (s *session) ProcessFrame(samples []float32) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.Event{}, errors.New("energy: session is closed")
	}
	if len(samples) == 0 {
		return vad.Event{Speech: false, Probability: 0}, nil
	}
	if len(samples) != s.frameSamples {
		return vad.Event{}, fmt.Errorf("energy: frame has %d samples, want %d", len(samples), s.frameSamples)
	}

	level := RMS(samples)

	if s.inSpeech {
		if level < s.th.silence {
			s.silenceCount++
			s.speechCount = 0
			if s.silenceCount >= s.th.offRun {
				s.inSpeech = false
				s.silenceCount = 0
			}
		} else {
			s.silenceCount = 0
		}
	} else {
		if level >= s.th.speech {
			s.speechCount++
			s.silenceCount = 0
			if s.speechCount >= s.th.onRun {
				s.inSpeech = true
				s.speechCount = 0
			}
		} else {
			s.speechCount = 0
		}
	}

	return vad.Event{Speech: s.inSpeech, Probability: probability(level, s.th)}, nil
}

// Reset clears the hysteresis state without closing the session.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

// Close marks the session closed. Safe to call multiple times.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// RMS returns the root-mean-square level of samples, in [0, 1] for
// normalised PCM. Returns 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// probability maps an RMS level onto a [0, 1] confidence relative to the
// session thresholds: 0 at or below the silence threshold, 1 at twice the
// speech threshold, linear in between.
func probability(level float64, th thresholds) float64 {
	if level <= th.silence {
		return 0
	}
	top := th.speech * 2
	if level >= top {
		return 1
	}
	return (level - th.silence) / (top - th.silence)
}
