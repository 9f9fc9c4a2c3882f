// Package mock provides a scriptable test double for the capture package.
//
// Device replays a fixed sequence of frames, interleaving timeouts where the
// script contains a zero-value entry, then returns ErrClosed (or blocks,
// when Hold is set) once the script is exhausted.
package mock

import (
	"context"
	"sync"

	"github.com/mliane/voxpipe/pkg/audio"
	"github.com/mliane/voxpipe/pkg/provider/capture"
)

// Entry is one scripted ReadFrame outcome.
type Entry struct {
	// Frame is returned when Err is nil.
	Frame audio.Frame

	// Err, if non-nil, is returned instead of a frame (e.g., capture.ErrTimeout).
	Err error
}

// Device is a mock implementation of capture.Device.
type Device struct {
	mu sync.Mutex

	// Script is consumed one entry per ReadFrame call.
	Script []Entry

	// Hold, when true, makes ReadFrame block on ctx after the script is
	// exhausted instead of returning ErrClosed. Useful for pipelines that
	// must be shut down by cancellation.
	Hold bool

	// ReadCount is the number of ReadFrame calls made.
	ReadCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closed chan struct{}
	once   sync.Once
}

var _ capture.Device = (*Device)(nil)

// ReadFrame pops the next scripted entry.
func (d *Device) ReadFrame(ctx context.Context) (audio.Frame, error) {
	d.mu.Lock()
	d.ReadCount++
	if len(d.Script) > 0 {
		e := d.Script[0]
		d.Script = d.Script[1:]
		d.mu.Unlock()
		return e.Frame, e.Err
	}
	hold := d.Hold
	closed := d.closedCh()
	d.mu.Unlock()

	if !hold {
		return audio.Frame{}, capture.ErrClosed
	}
	select {
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case <-closed:
		return audio.Frame{}, capture.ErrClosed
	}
}

// Reads returns the number of ReadFrame calls made. Thread-safe.
func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ReadCount
}

// Close records the call and unblocks held readers.
func (d *Device) Close() error {
	d.mu.Lock()
	d.CloseCallCount++
	ch := d.closedCh()
	d.mu.Unlock()
	d.once.Do(func() { close(ch) })
	return nil
}

// closedCh lazily creates the closed channel. Must be called with mu held.
func (d *Device) closedCh() chan struct{} {
	if d.closed == nil {
		d.closed = make(chan struct{})
	}
	return d.closed
}
