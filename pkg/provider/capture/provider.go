// Package capture defines the Device interface for audio capture backends.
//
// A capture device owns the physical (or remote) audio resource and delivers
// fixed-duration mono frames to the pipeline. Reads block only on the
// underlying device's buffer availability; when no frame arrives within the
// device's read window, ReadFrame returns [ErrTimeout] so the caller's loop
// can run periodic housekeeping instead of stalling.
//
// Implementations must be safe for concurrent use of Close with a blocked
// ReadFrame; ReadFrame itself is intended for a single reader goroutine.
package capture

import (
	"context"
	"errors"

	"github.com/mliane/voxpipe/pkg/audio"
)

// ErrTimeout is returned by ReadFrame when no frame became available within
// the device's read window. It is a normal flow-control outcome, not a
// failure.
var ErrTimeout = errors.New("capture: read timed out")

// ErrClosed is returned by ReadFrame after the device has been closed.
var ErrClosed = errors.New("capture: device is closed")

// Device is the abstraction over any audio capture source: a microphone, a
// remote device streaming over the network, or a scripted test source.
type Device interface {
	// ReadFrame returns the next captured frame. It blocks until a frame is
	// available, the read window elapses ([ErrTimeout]), ctx is cancelled, or
	// the device is closed ([ErrClosed]).
	ReadFrame(ctx context.Context) (audio.Frame, error)

	// Close releases the capture resource. Any blocked ReadFrame returns
	// ErrClosed. Calling Close more than once is safe and returns nil.
	Close() error
}
