package segment

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mliane/voxpipe/pkg/audio"
	"github.com/mliane/voxpipe/pkg/provider/vad"
	vadmock "github.com/mliane/voxpipe/pkg/provider/vad/mock"
)

// frame builds a 20 ms, 16 kHz sine frame with the given amplitude.
func frame(amplitude float32) audio.Frame {
	samples := make([]float32, 320)
	for i := range samples {
		samples[i] = amplitude * float32(math.Sin(2*math.Pi*float64(i)/32))
	}
	return audio.Frame{Samples: samples, SampleRate: 16000, Timestamp: time.Now()}
}

func TestNew_InvalidAggressiveness(t *testing.T) {
	_, err := New(Config{SampleRate: 16000, FrameSizeMs: 20, Aggressiveness: vad.Aggressiveness(99)})
	if err == nil {
		t.Fatal("expected error for invalid aggressiveness")
	}
}

func TestClassify_EmptyFrame(t *testing.T) {
	c, err := New(Config{SampleRate: 16000, FrameSizeMs: 20, Aggressiveness: vad.Balanced})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	seg := c.Classify(audio.Frame{SampleRate: 16000})
	if seg.HasSpeech {
		t.Error("empty frame classified as speech")
	}
	if seg.Energy != 0 {
		t.Errorf("Energy = %f, want 0", seg.Energy)
	}
	if seg.Duration != 0 {
		t.Errorf("Duration = %v, want 0", seg.Duration)
	}
}

func TestClassify_EnergyIsRMS(t *testing.T) {
	c, err := New(Config{SampleRate: 16000, FrameSizeMs: 20, Aggressiveness: vad.Balanced})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	f := frame(0.1)
	seg := c.Classify(f)

	// RMS of a sine with amplitude A is A/√2.
	want := 0.1 / math.Sqrt2
	if math.Abs(seg.Energy-want) > 0.005 {
		t.Errorf("Energy = %f, want ≈ %f", seg.Energy, want)
	}
	if seg.Duration != f.Duration() {
		t.Errorf("Duration = %v, want %v", seg.Duration, f.Duration())
	}
}

func TestClassify_UsesDetectorVerdict(t *testing.T) {
	sess := &vadmock.Session{
		Script: []vad.Event{
			{Speech: true, Probability: 0.9},
			{Speech: false, Probability: 0.1},
		},
	}
	c, err := New(Config{
		SampleRate:     16000,
		FrameSizeMs:    20,
		Aggressiveness: vad.Balanced,
		Engine:         &vadmock.Engine{Session: sess},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	// A quiet frame the energy fallback would call silence: the detector
	// verdict must win.
	if seg := c.Classify(frame(0.001)); !seg.HasSpeech {
		t.Error("first frame: detector said speech, classifier disagreed")
	}
	if seg := c.Classify(frame(0.5)); seg.HasSpeech {
		t.Error("second frame: detector said silence, classifier disagreed")
	}
}

func TestClassify_DetectorErrorFallsBackToEnergy(t *testing.T) {
	sess := &vadmock.Session{ProcessFrameErr: errors.New("detector broken")}
	c, err := New(Config{
		SampleRate:     16000,
		FrameSizeMs:    20,
		Aggressiveness: vad.Balanced,
		Engine:         &vadmock.Engine{Session: sess},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	// Loud frame: the energy fallback should flag speech despite the error.
	if seg := c.Classify(frame(0.5)); !seg.HasSpeech {
		t.Error("loud frame not classified as speech via energy fallback")
	}
	// Quiet frame: below the fallback threshold.
	if seg := c.Classify(frame(0.001)); seg.HasSpeech {
		t.Error("quiet frame classified as speech via energy fallback")
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c, err := New(Config{SampleRate: 16000, FrameSizeMs: 20, Aggressiveness: vad.Balanced})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	f := frame(0.2)
	first := c.Classify(f)
	c.Reset()
	second := c.Classify(f)

	if first.HasSpeech != second.HasSpeech || first.Energy != second.Energy {
		t.Errorf("classification not deterministic: %+v vs %+v", first, second)
	}
}

func TestReset_ForwardsToSession(t *testing.T) {
	sess := &vadmock.Session{}
	c, err := New(Config{
		SampleRate:     16000,
		FrameSizeMs:    20,
		Aggressiveness: vad.Balanced,
		Engine:         &vadmock.Engine{Session: sess},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Reset()
	if sess.ResetCallCount != 1 {
		t.Errorf("ResetCallCount = %d, want 1", sess.ResetCallCount)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("CloseCallCount = %d, want 1", sess.CloseCallCount)
	}
}
