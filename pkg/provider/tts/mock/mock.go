// Package mock provides a recording test double for the tts package.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/mliane/voxpipe/pkg/provider/tts"
)

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Duration is the AudioDuration reported for every call.
	Duration time.Duration

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// Delay, when set, is awaited before answering. Used to simulate
	// playback time.
	Delay func(ctx context.Context) error

	// Spoken records the text of every Synthesize call in order.
	Spoken []string
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesize records the call and returns the configured result.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.SpeechResult, error) {
	if s.Delay != nil {
		if err := s.Delay(ctx); err != nil {
			return tts.SpeechResult{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Spoken = append(s.Spoken, text)
	if s.Err != nil {
		return tts.SpeechResult{}, s.Err
	}
	return tts.SpeechResult{AudioDuration: s.Duration}, nil
}

// SpokenSnapshot returns a copy of the recorded utterances. Thread-safe.
func (s *Synthesizer) SpokenSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Spoken))
	copy(out, s.Spoken)
	return out
}
