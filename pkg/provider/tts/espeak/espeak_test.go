package espeak

import (
	"context"
	"reflect"
	"testing"
)

// ── argument construction ────────────────────────────────────────────────────

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		s    *Synthesizer
		text string
		want []string
	}{
		{
			name: "defaults",
			s:    New(),
			text: "hello",
			want: []string{"--", "hello"},
		},
		{
			name: "voice and speed",
			s:    New(WithVoice("en-us"), WithSpeed(150)),
			text: "hello",
			want: []string{"-v", "en-us", "-s", "150", "--", "hello"},
		},
		{
			name: "leading dash is not a flag",
			s:    New(),
			text: "-v trick",
			want: []string{"--", "-v trick"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.args(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("args(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

// ── Synthesize ───────────────────────────────────────────────────────────────

// Substitute coreutils for the real binary so tests run without audio
// hardware or espeak-ng installed.

func TestSynthesize_BinarySuccess(t *testing.T) {
	s := New(WithBinary("true"))
	res, err := s.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.AudioDuration < 0 {
		t.Errorf("AudioDuration = %v, want >= 0", res.AudioDuration)
	}
}

func TestSynthesize_BinaryFailure(t *testing.T) {
	s := New(WithBinary("false"))
	if _, err := s.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error from failing binary, got nil")
	}
}

func TestSynthesize_BinaryMissing(t *testing.T) {
	s := New(WithBinary("definitely-not-a-real-espeak-binary"))
	if _, err := s.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for missing binary, got nil")
	}
}

func TestSynthesize_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(WithBinary("sleep"), WithVoice(""))
	// With a cancelled context the subprocess never gets to run.
	if _, err := s.Synthesize(ctx, "5"); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}
