// Package echo guards the pipeline against hearing the assistant's own
// synthesized voice.
//
// The [Suppressor] tracks what the assistant last said and when it finished
// saying it. Candidate transcriptions arriving shortly afterwards are
// compared against that utterance with a bag-of-words similarity; close
// matches are discarded as self-echo. While synthesis is in progress the
// suppressor reports the pipeline as suspended so capture keeps draining
// frames without classifying them.
package echo

import (
	"strings"
	"sync"
	"time"
	"unicode"
)

// Config tunes the [Suppressor]. Zero-value fields get defaults.
type Config struct {
	// Threshold is the word-set similarity above which a transcription is
	// treated as an echo. Default: 0.5.
	Threshold float64

	// Window is how long after the assistant finished speaking an echo can
	// still arrive. Default: 1s.
	Window time.Duration
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	if c.Window <= 0 {
		c.Window = time.Second
	}
}

// Suppressor decides whether a transcription is a probable self-echo. Safe
// for concurrent use.
type Suppressor struct {
	cfg Config

	mu          sync.Mutex
	speaking    bool
	spokenWords map[string]struct{}
	spokeUntil  time.Time
}

// New creates a [Suppressor] from cfg.
func New(cfg Config) *Suppressor {
	cfg.applyDefaults()
	return &Suppressor{cfg: cfg}
}

// SpeakingStarted records that the assistant began synthesizing text. The
// pipeline is suspended until [Suppressor.SpeakingFinished].
func (s *Suppressor) SpeakingStarted(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = true
	s.spokenWords = wordSet(text)
}

// SpeakingFinished records that playback ended; the echo window starts now.
func (s *Suppressor) SpeakingFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = false
	s.spokeUntil = time.Now()
}

// Suspended reports whether synthesis is in progress and capture output
// should be drained instead of classified.
func (s *Suppressor) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// ShouldSuppress reports whether text is a probable echo of the assistant's
// last utterance.
func (s *Suppressor) ShouldSuppress(text string) bool {
	return s.shouldSuppressAt(text, time.Now())
}

func (s *Suppressor) shouldSuppressAt(text string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.spokenWords) == 0 {
		return false
	}
	// Anything heard mid-playback is treated as inside the window.
	if !s.speaking && now.Sub(s.spokeUntil) > s.cfg.Window {
		return false
	}

	heard := wordSet(text)
	if len(heard) == 0 {
		return false
	}

	// A transcription containing everything the assistant just said is an
	// echo no matter how much extra the recognizer hallucinated around it.
	if contains(heard, s.spokenWords) {
		return true
	}
	return similarity(heard, s.spokenWords) > s.cfg.Threshold
}

// Similarity is the intersection-over-union of the word sets of a and b, in
// [0, 1].
func Similarity(a, b string) float64 {
	return similarity(wordSet(a), wordSet(b))
}

func similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// contains reports whether every word of sub is in set.
func contains(set, sub map[string]struct{}) bool {
	if len(sub) == 0 {
		return false
	}
	for w := range sub {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// wordSet lowercases text, strips punctuation, and returns its unique words.
func wordSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
