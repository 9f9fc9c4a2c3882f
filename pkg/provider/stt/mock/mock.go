// Package mock provides a recording test double for the stt package.
package mock

import (
	"context"
	"sync"

	"github.com/mliane/voxpipe/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	// Samples is a copy of the audio passed to Recognize.
	Samples []float32

	// Opts is the options struct passed to Recognize.
	Opts stt.RecognizeOptions
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Result is returned by every Recognize call when Script is empty.
	Result stt.Transcript

	// Script, when non-empty, is consumed one Transcript per call. After the
	// script is exhausted, Result is returned.
	Script []stt.Transcript

	// Err, if non-nil, is returned by every Recognize call.
	Err error

	// Delay, when set, makes Recognize sleep (or return early on ctx
	// cancellation) before answering. Used to simulate slow backends.
	Delay func(ctx context.Context) error

	// Calls records every invocation in order.
	Calls []RecognizeCall
}

var _ stt.Recognizer = (*Recognizer)(nil)

// Recognize records the call and returns the next scripted transcript.
func (r *Recognizer) Recognize(ctx context.Context, samples []float32, opts stt.RecognizeOptions) (stt.Transcript, error) {
	if r.Delay != nil {
		if err := r.Delay(ctx); err != nil {
			return stt.Transcript{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	r.Calls = append(r.Calls, RecognizeCall{Samples: cp, Opts: opts})
	if r.Err != nil {
		return stt.Transcript{}, r.Err
	}
	if len(r.Script) > 0 {
		tr := r.Script[0]
		r.Script = r.Script[1:]
		tr.IsFinal = opts.Alignment
		return tr, nil
	}
	tr := r.Result
	tr.IsFinal = opts.Alignment
	return tr, nil
}

// CallsSnapshot returns a copy of the recorded calls. Thread-safe.
func (r *Recognizer) CallsSnapshot() []RecognizeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecognizeCall, len(r.Calls))
	copy(out, r.Calls)
	return out
}
