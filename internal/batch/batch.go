// Package batch accumulates classified speech segments into transcription
// units.
//
// The [Batcher] consumes segments from the capture loop, grows an active
// [Batch] while speech continues, and applies pause heuristics to decide
// when the batch is worth a partial transcription and when it is complete.
// Transcriptions run on a bounded worker pool so the capture loop is never
// starved; results are delivered on the [Batcher.Events] channel.
package batch

import (
	"time"

	"github.com/mliane/voxpipe/pkg/audio"
)

// State describes the lifecycle of a [Batch].
type State int

const (
	// Active means the batch is still accumulating speech.
	Active State = iota

	// Paused means a silence gap was observed but the batch is not yet
	// judged complete.
	Paused

	// Completed means the batch was finalized and handed to the recognizer.
	Completed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Batch is a contiguous run of speech segments forming one transcription
// unit. Samples is always the concatenation, in arrival order, of the
// samples of every segment in Segments. Only the batcher's run loop mutates
// a batch.
type Batch struct {
	// ID is a monotonically increasing identifier assigned at creation.
	ID uint64

	// Segments are the speech segments in arrival order.
	Segments []audio.Segment

	// Samples is the ordered concatenation of all segment samples.
	Samples []float32

	// StartTime is the timestamp of the first segment.
	StartTime time.Time

	// LastActivity is the end time of the most recent speech segment. It
	// never decreases.
	LastActivity time.Time

	// State is the current lifecycle state.
	State State
}

// add appends seg to the batch, maintaining the concatenation invariant and
// the monotonicity of LastActivity.
func (b *Batch) add(seg audio.Segment) {
	if len(b.Segments) == 0 {
		b.StartTime = seg.Timestamp
	}
	b.Segments = append(b.Segments, seg)
	b.Samples = append(b.Samples, seg.Samples...)

	if end := seg.Timestamp.Add(seg.Duration); end.After(b.LastActivity) {
		b.LastActivity = end
	}
}

// Duration is the total audio duration accumulated so far.
func (b *Batch) Duration() time.Duration {
	var d time.Duration
	for _, seg := range b.Segments {
		d += seg.Duration
	}
	return d
}
