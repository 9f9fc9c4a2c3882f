// Package mock provides a recording test double for the dispatch package.
package mock

import (
	"context"
	"sync"

	"github.com/mliane/voxpipe/pkg/provider/dispatch"
	"github.com/mliane/voxpipe/pkg/provider/intent"
)

// Dispatcher is a mock implementation of dispatch.Dispatcher.
type Dispatcher struct {
	mu sync.Mutex

	// Result is returned by every Dispatch call.
	Result dispatch.CommandResult

	// Err, if non-nil, is returned by every Dispatch call.
	Err error

	// Dispatched records every intent passed to Dispatch in order.
	Dispatched []intent.Intent
}

var _ dispatch.Dispatcher = (*Dispatcher)(nil)

// Dispatch records the call and returns the configured result.
func (d *Dispatcher) Dispatch(_ context.Context, it intent.Intent) (dispatch.CommandResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dispatched = append(d.Dispatched, it)
	if d.Err != nil {
		return dispatch.CommandResult{}, d.Err
	}
	return d.Result, nil
}

// DispatchedSnapshot returns a copy of the recorded intents. Thread-safe.
func (d *Dispatcher) DispatchedSnapshot() []intent.Intent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]intent.Intent, len(d.Dispatched))
	copy(out, d.Dispatched)
	return out
}
