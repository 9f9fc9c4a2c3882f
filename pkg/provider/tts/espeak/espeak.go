// Package espeak implements tts.Synthesizer by shelling out to espeak-ng.
//
// espeak-ng plays directly to the default audio device and exits when the
// utterance finishes, so Synthesize blocks for exactly the playback time and
// the reported duration is measured wall time. Quality is below a neural
// synthesizer; the backend is intended as a zero-setup fallback behind
// piper.
package espeak

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mliane/voxpipe/pkg/provider/tts"
)

const defaultBinary = "espeak-ng"

// Option is a functional option for configuring an espeak Synthesizer.
type Option func(*Synthesizer)

// WithVoice sets the espeak voice (e.g. "en-us", "de"). When empty, the
// binary's default voice is used.
func WithVoice(voice string) Option {
	return func(s *Synthesizer) { s.voice = voice }
}

// WithSpeed sets the speaking rate in words per minute. Zero leaves the
// binary default (175 wpm).
func WithSpeed(wpm int) Option {
	return func(s *Synthesizer) { s.speed = wpm }
}

// WithBinary overrides the espeak-ng executable path.
func WithBinary(path string) Option {
	return func(s *Synthesizer) { s.binary = path }
}

// Synthesizer speaks through an espeak-ng subprocess, one process per
// utterance. Safe for concurrent use.
type Synthesizer struct {
	binary string
	voice  string
	speed  int
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New creates an espeak Synthesizer. The binary is not probed until the
// first Synthesize call.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{binary: defaultBinary}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize speaks text and blocks until playback finishes.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.SpeechResult, error) {
	cmd := exec.CommandContext(ctx, s.binary, s.args(text)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return tts.SpeechResult{}, fmt.Errorf("espeak: %s: %s: %w", s.binary, msg, err)
		}
		return tts.SpeechResult{}, fmt.Errorf("espeak: %s: %w", s.binary, err)
	}

	return tts.SpeechResult{AudioDuration: time.Since(start)}, nil
}

// args builds the command line. Text goes last as a positional argument so
// leading dashes in the utterance cannot be parsed as flags ("--" guard).
func (s *Synthesizer) args(text string) []string {
	var args []string
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	if s.speed > 0 {
		args = append(args, "-s", strconv.Itoa(s.speed))
	}
	return append(args, "--", text)
}
