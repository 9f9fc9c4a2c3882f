// Package redial wraps a capture device with automatic reconnection.
//
// Network-backed devices (a WebSocket satellite, for instance) drop when the
// remote side restarts. Device re-dials the stream with exponential backoff
// so a transient drop does not terminate the whole pipeline; only Close or
// exhausted retries surface as a closed device.
package redial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mliane/voxpipe/pkg/audio"
	"github.com/mliane/voxpipe/pkg/provider/capture"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// DialFunc establishes one connection to the underlying audio source.
type DialFunc func(ctx context.Context) (capture.Device, error)

// Config configures a redialing [Device].
type Config struct {
	// MaxRetries is the number of reconnection attempts per drop before
	// the device reports itself closed. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial delay between attempts. Doubles each attempt
	// up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the backoff delay. Defaults to 30s
	// if zero.
	MaxBackoff time.Duration
}

// Device is a capture.Device that re-establishes its underlying connection
// when reads fail. Reconnection happens synchronously inside ReadFrame, so
// callers see at most a delay, never a transient error. Safe for concurrent
// use, though the pipeline reads from a single goroutine.
type Device struct {
	dial       DialFunc
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	mu      sync.Mutex
	current capture.Device
	closed  bool
}

var _ capture.Device = (*Device)(nil)

// New dials the initial connection and returns the wrapping device. The
// initial dial failing is fatal; backoff only applies to reconnects.
func New(ctx context.Context, dial DialFunc, cfg Config) (*Device, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}

	conn, err := dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("redial: initial connect: %w", err)
	}
	return &Device{
		dial:       dial,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		current:    conn,
	}, nil
}

// ReadFrame reads from the current connection, reconnecting on failure.
// Timeouts pass through untouched; any other read error triggers a redial
// cycle. After Close, or once retries are exhausted, it returns
// capture.ErrClosed.
func (d *Device) ReadFrame(ctx context.Context) (audio.Frame, error) {
	for {
		d.mu.Lock()
		conn, closed := d.current, d.closed
		d.mu.Unlock()
		if closed {
			return audio.Frame{}, capture.ErrClosed
		}

		frame, err := conn.ReadFrame(ctx)
		switch {
		case err == nil:
			return frame, nil
		case errors.Is(err, capture.ErrTimeout):
			return audio.Frame{}, err
		case ctx.Err() != nil:
			return audio.Frame{}, ctx.Err()
		}

		slog.Warn("capture connection lost", "err", err)
		if rerr := d.reconnect(ctx, conn); rerr != nil {
			return audio.Frame{}, rerr
		}
	}
}

// reconnect replaces the dropped connection, backing off between attempts.
// failed is released once a replacement is in place.
func (d *Device) reconnect(ctx context.Context, failed capture.Device) error {
	backoff := d.backoff

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		d.mu.Lock()
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return capture.ErrClosed
		}

		slog.Info("reconnecting capture device",
			"attempt", attempt,
			"max_retries", d.maxRetries,
			"backoff", backoff,
		)

		conn, err := d.dial(ctx)
		if err == nil {
			d.mu.Lock()
			if d.closed {
				d.mu.Unlock()
				_ = conn.Close()
				return capture.ErrClosed
			}
			d.current = conn
			d.mu.Unlock()
			_ = failed.Close()

			slog.Info("capture device reconnected", "attempt", attempt)
			return nil
		}

		slog.Warn("capture reconnect attempt failed", "attempt", attempt, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
	}

	slog.Error("capture reconnect failed, giving up", "max_retries", d.maxRetries)
	return capture.ErrClosed
}

// Close closes the current connection and stops any further redialing.
// Safe to call multiple times.
func (d *Device) Close() error {
	d.mu.Lock()
	conn := d.current
	wasClosed := d.closed
	d.closed = true
	d.current = nil
	d.mu.Unlock()

	if wasClosed || conn == nil {
		return nil
	}
	return conn.Close()
}
