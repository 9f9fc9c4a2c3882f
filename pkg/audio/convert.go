package audio

import (
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a raw PCM stream as
// delivered by a capture backend.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter converts device-native int16 PCM into the pipeline's
// canonical mono float32 format at a target sample rate. It logs a warning on
// the first format mismatch and validates PCM byte alignment.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Source Format
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts little-endian int16 PCM bytes in the source format to mono
// float32 samples at the target sample rate. Conversion order: downmix first,
// then resample. Returns nil for misaligned input.
func (c *FormatConverter) Convert(data []byte) []float32 {
	if len(data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: odd byte count in PCM data, dropping chunk",
				"bytes", len(data),
				"sample_rate", c.Source.SampleRate,
				"channels", c.Source.Channels,
			)
		})
		return nil
	}

	samples := bytesToFloat32(data)

	if c.Source.Channels > 1 {
		samples = downmixMono(samples, c.Source.Channels)
	}

	if c.Source.SampleRate != c.Target.SampleRate {
		c.warnedMismatch.Do(func() {
			slog.Debug("audio format converter: resampling",
				"from_hz", c.Source.SampleRate,
				"to_hz", c.Target.SampleRate,
			)
		})
		samples = Resample(samples, c.Source.SampleRate, c.Target.SampleRate)
	}

	return samples
}

// bytesToFloat32 decodes little-endian int16 PCM bytes into float32 samples
// normalised to [-1, 1].
func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		s := int16(data[2*i]) | int16(data[2*i+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToBytes encodes mono float32 samples as little-endian int16 PCM,
// clamping out-of-range values. Useful for backends that consume int16 audio.
func Float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		s := int16(f * 32767)
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// downmixMono averages interleaved multi-channel samples into mono.
func downmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	n := len(samples) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts samples from one rate to another using linear
// interpolation. Adequate for speech pipelines; not intended for music.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(fromRate) / float64(toRate)
	n := int(float64(len(samples)) / ratio)
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
