package echo

import (
	"testing"
	"time"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "turn on the lights", "turn on the lights", 1},
		{"disjoint", "hello there", "goodbye now", 0},
		{"both empty", "", "", 0},
		{"case and punctuation ignored", "Hello, World!", "hello world", 1},
		{"half overlap", "a b c d", "c d e f", 1.0 / 3.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Similarity(tc.a, tc.b)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Similarity(%q, %q) = %f, want %f", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestShouldSuppress_EchoInsideWindow(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	s.SpeakingStarted("Vous avez dit bonjour")
	s.SpeakingFinished()

	now := time.Now()
	if !s.shouldSuppressAt("vous avez dit bonjour", now.Add(800*time.Millisecond)) {
		t.Error("exact echo 0.8s after speaking was not suppressed")
	}
}

func TestShouldSuppress_SupersetSuppressed(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	s.SpeakingStarted("timer set")
	s.SpeakingFinished()

	// The heard text contains every spoken word plus recognizer noise:
	// still an echo, even though plain IoU would fall below the threshold.
	heard := "uh the timer set okay thanks a lot really appreciate it"
	if !s.shouldSuppressAt(heard, time.Now()) {
		t.Error("superset of spoken words inside the window was not suppressed")
	}
}

func TestShouldSuppress_DisjointAlwaysAccepted(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	s.SpeakingStarted("Vous avez dit bonjour")
	s.SpeakingFinished()

	// No shared words: accepted regardless of timing, even immediately.
	if s.shouldSuppressAt("éteins la lumière", time.Now()) {
		t.Error("unrelated transcription inside the window was suppressed")
	}
}

func TestShouldSuppress_OutsideWindowAccepted(t *testing.T) {
	t.Parallel()

	s := New(Config{Window: time.Second})
	s.SpeakingStarted("hello there")
	s.SpeakingFinished()

	if s.shouldSuppressAt("hello there", time.Now().Add(5*time.Second)) {
		t.Error("echo outside the window was suppressed")
	}
}

func TestShouldSuppress_DuringPlayback(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	s.SpeakingStarted("reading you the weather")

	// Still speaking: no window check applies yet.
	if !s.shouldSuppressAt("reading you the weather", time.Now().Add(time.Minute)) {
		t.Error("echo during playback was not suppressed")
	}
	if !s.Suspended() {
		t.Error("suppressor not suspended during playback")
	}

	s.SpeakingFinished()
	if s.Suspended() {
		t.Error("suppressor still suspended after playback finished")
	}
}

func TestShouldSuppress_NothingSpokenYet(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	if s.ShouldSuppress("turn on the lights") {
		t.Error("transcription suppressed before the assistant ever spoke")
	}
}

func TestShouldSuppress_BelowThresholdAccepted(t *testing.T) {
	t.Parallel()

	s := New(Config{Threshold: 0.5})
	s.SpeakingStarted("a b c d")
	s.SpeakingFinished()

	// IoU = 2/6 ≈ 0.33 and no containment: accepted.
	if s.shouldSuppressAt("c d e f", time.Now()) {
		t.Error("low-similarity transcription was suppressed")
	}
}
