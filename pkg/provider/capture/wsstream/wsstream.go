// Package wsstream implements capture.Device for remote microphones that
// stream audio over a WebSocket connection — typically small embedded
// satellites that capture locally and push frames to the assistant host.
//
// The device accepts binary messages in one of two encodings, selected at
// construction: raw little-endian int16 PCM, or Opus packets (decoded with
// layeh.com/gopus). Either way, frames are converted to the pipeline's
// canonical mono float32 format at the configured sample rate before being
// handed to ReadFrame.
//
// A background reader goroutine owns the connection; ReadFrame pulls from a
// bounded frame queue and returns capture.ErrTimeout when the queue stays
// empty for the read window, so the capture loop keeps ticking during
// network stalls.
package wsstream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/mliane/voxpipe/pkg/audio"
	"github.com/mliane/voxpipe/pkg/provider/capture"
)

// Encoding selects the wire format of incoming binary messages.
type Encoding string

const (
	// EncodingPCM16 is raw little-endian int16 PCM.
	EncodingPCM16 Encoding = "pcm16"

	// EncodingOpus is one Opus packet per binary message.
	EncodingOpus Encoding = "opus"
)

const (
	// defaultReadWindow is how long ReadFrame waits before reporting
	// ErrTimeout.
	defaultReadWindow = 200 * time.Millisecond

	// frameQueueDepth bounds buffered frames between the reader goroutine
	// and ReadFrame. At 20 ms frames this is ~1.3 s of audio.
	frameQueueDepth = 64

	// opusMaxFrameSize is the largest frame a single Opus packet can carry
	// (120 ms at 48 kHz).
	opusMaxFrameSize = 5760
)

// Config describes the remote stream.
type Config struct {
	// URL is the WebSocket endpoint to dial (e.g., "ws://satellite:8090/audio").
	URL string

	// Encoding is the wire format of binary messages. Default: pcm16.
	Encoding Encoding

	// SourceRate is the sample rate of the incoming audio in Hz.
	SourceRate int

	// SourceChannels is the channel count of the incoming audio.
	SourceChannels int

	// TargetRate is the pipeline sample rate frames are converted to.
	TargetRate int

	// ReadWindow overrides how long ReadFrame waits before ErrTimeout.
	ReadWindow time.Duration
}

// Device is a WebSocket-backed capture device.
type Device struct {
	cfg     Config
	conn    *websocket.Conn
	frames  chan audio.Frame
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	decoder *gopus.Decoder
	conv    *audio.FormatConverter
}

var _ capture.Device = (*Device)(nil)

// Dial connects to the remote stream and starts the reader goroutine.
// The caller must call Close when the device is no longer needed.
func Dial(ctx context.Context, cfg Config) (*Device, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("wsstream: URL must not be empty")
	}
	if cfg.SourceRate <= 0 || cfg.TargetRate <= 0 {
		return nil, fmt.Errorf("wsstream: sample rates must be positive (source=%d, target=%d)", cfg.SourceRate, cfg.TargetRate)
	}
	if cfg.SourceChannels <= 0 {
		cfg.SourceChannels = 1
	}
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingPCM16
	}
	if cfg.ReadWindow <= 0 {
		cfg.ReadWindow = defaultReadWindow
	}

	d := &Device{
		cfg:    cfg,
		frames: make(chan audio.Frame, frameQueueDepth),
		done:   make(chan struct{}),
		conv: &audio.FormatConverter{
			Source: audio.Format{SampleRate: cfg.SourceRate, Channels: cfg.SourceChannels},
			Target: audio.Format{SampleRate: cfg.TargetRate, Channels: 1},
		},
	}

	if cfg.Encoding == EncodingOpus {
		dec, err := gopus.NewDecoder(cfg.SourceRate, cfg.SourceChannels)
		if err != nil {
			return nil, fmt.Errorf("wsstream: create opus decoder: %w", err)
		}
		d.decoder = dec
	}

	conn, _, err := websocket.Dial(ctx, cfg.URL, &websocket.DialOptions{})
	if err != nil {
		return nil, fmt.Errorf("wsstream: dial %q: %w", cfg.URL, err)
	}
	d.conn = conn

	d.wg.Add(1)
	go d.readLoop()

	return d, nil
}

// ReadFrame returns the next converted frame, capture.ErrTimeout when the
// queue stays empty for the read window, or capture.ErrClosed after Close.
func (d *Device) ReadFrame(ctx context.Context) (audio.Frame, error) {
	timer := time.NewTimer(d.cfg.ReadWindow)
	defer timer.Stop()

	select {
	case f, ok := <-d.frames:
		if !ok {
			return audio.Frame{}, capture.ErrClosed
		}
		return f, nil
	case <-timer.C:
		return audio.Frame{}, capture.ErrTimeout
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case <-d.done:
		return audio.Frame{}, capture.ErrClosed
	}
}

// Close terminates the connection and the reader goroutine. Safe to call
// multiple times.
func (d *Device) Close() error {
	d.once.Do(func() {
		close(d.done)
		_ = d.conn.Close(websocket.StatusNormalClosure, "device closed")
		d.wg.Wait()
	})
	return nil
}

// readLoop owns the WebSocket connection: it reads binary messages, decodes
// them, and queues converted frames. Non-binary messages are ignored. The
// loop exits on connection error or Close; the frame queue is closed on exit
// so blocked ReadFrame calls observe ErrClosed.
func (d *Device) readLoop() {
	defer d.wg.Done()
	defer close(d.frames)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-d.done
		cancel()
	}()

	for {
		msgType, data, err := d.conn.Read(ctx)
		if err != nil {
			select {
			case <-d.done:
			default:
				slog.Warn("wsstream: connection read failed", "url", d.cfg.URL, "err", err)
			}
			return
		}
		if msgType != websocket.MessageBinary || len(data) == 0 {
			continue
		}

		samples, err := d.decode(data)
		if err != nil {
			slog.Warn("wsstream: dropping undecodable message", "bytes", len(data), "err", err)
			continue
		}
		if len(samples) == 0 {
			continue
		}

		frame := audio.Frame{
			Samples:    samples,
			SampleRate: d.cfg.TargetRate,
			Timestamp:  time.Now(),
		}

		select {
		case d.frames <- frame:
		case <-d.done:
			return
		default:
			// Queue full: the consumer has stalled. Drop the oldest frame so
			// fresh audio keeps flowing.
			select {
			case <-d.frames:
			default:
			}
			select {
			case d.frames <- frame:
			default:
			}
		}
	}
}

// decode converts one wire message to canonical mono float32 samples.
func (d *Device) decode(data []byte) ([]float32, error) {
	if d.decoder == nil {
		return d.conv.Convert(data), nil
	}
	pcm, err := d.decoder.Decode(data, opusMaxFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768.0
	}
	if d.cfg.SourceChannels > 1 || d.cfg.SourceRate != d.cfg.TargetRate {
		if d.cfg.SourceChannels > 1 {
			samples = downmix(samples, d.cfg.SourceChannels)
		}
		samples = audio.Resample(samples, d.cfg.SourceRate, d.cfg.TargetRate)
	}
	return samples, nil
}

// downmix averages interleaved channels into mono.
func downmix(samples []float32, channels int) []float32 {
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
