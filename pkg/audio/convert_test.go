package audio

import (
	"math"
	"testing"
	"time"
)

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		samples    int
		sampleRate int
		want       time.Duration
	}{
		{"20ms at 16kHz", 320, 16000, 20 * time.Millisecond},
		{"30ms at 16kHz", 480, 16000, 30 * time.Millisecond},
		{"empty frame", 0, 16000, 0},
		{"unset sample rate", 320, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := Frame{Samples: make([]float32, tc.samples), SampleRate: tc.sampleRate}
			if got := f.Duration(); got != tc.want {
				t.Errorf("Duration() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConvertInt16RoundTrip(t *testing.T) {
	t.Parallel()

	in := []float32{0, 0.5, -0.5, 0.999, -1}
	data := Float32ToBytes(in)

	c := &FormatConverter{
		Source: Format{SampleRate: 16000, Channels: 1},
		Target: Format{SampleRate: 16000, Channels: 1},
	}
	out := c.Convert(data)

	if len(out) != len(in) {
		t.Fatalf("got %d samples, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1.0/32767 {
			t.Errorf("sample %d: got %f, want %f", i, out[i], in[i])
		}
	}
}

func TestConvertMisalignedPCM(t *testing.T) {
	t.Parallel()

	c := &FormatConverter{
		Source: Format{SampleRate: 16000, Channels: 1},
		Target: Format{SampleRate: 16000, Channels: 1},
	}
	if out := c.Convert([]byte{0x01, 0x02, 0x03}); out != nil {
		t.Errorf("expected nil for odd byte count, got %d samples", len(out))
	}
}

func TestConvertStereoDownmix(t *testing.T) {
	t.Parallel()

	// Left channel at +0.5, right at -0.5 — mono mix should be ~0.
	left := Float32ToBytes([]float32{0.5})
	right := Float32ToBytes([]float32{-0.5})
	interleaved := append(append([]byte{}, left...), right...)

	c := &FormatConverter{
		Source: Format{SampleRate: 16000, Channels: 2},
		Target: Format{SampleRate: 16000, Channels: 1},
	}
	out := c.Convert(interleaved)
	if len(out) != 1 {
		t.Fatalf("got %d samples, want 1", len(out))
	}
	if math.Abs(float64(out[0])) > 0.001 {
		t.Errorf("downmixed sample = %f, want ~0", out[0])
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	t.Run("halves sample count at 2:1", func(t *testing.T) {
		t.Parallel()
		in := make([]float32, 960) // 20 ms at 48 kHz
		out := Resample(in, 48000, 16000)
		if len(out) != 320 {
			t.Errorf("got %d samples, want 320", len(out))
		}
	})

	t.Run("same rate is passthrough", func(t *testing.T) {
		t.Parallel()
		in := []float32{1, 2, 3}
		out := Resample(in, 16000, 16000)
		if &out[0] != &in[0] {
			t.Error("expected passthrough without copy")
		}
	})

	t.Run("preserves constant signal", func(t *testing.T) {
		t.Parallel()
		in := make([]float32, 480)
		for i := range in {
			in[i] = 0.25
		}
		out := Resample(in, 48000, 16000)
		for i, s := range out {
			if math.Abs(float64(s-0.25)) > 0.001 {
				t.Fatalf("sample %d: got %f, want 0.25", i, s)
			}
		}
	})
}
