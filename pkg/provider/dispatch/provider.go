// Package dispatch defines the Dispatcher interface for command executors.
//
// A dispatcher executes a confirmed intent — it is the boundary between the
// speech-interaction core and the assistant's actual business logic (home
// automation, media control, a remote daemon, ...). The state machine calls
// Dispatch exactly once per confirmed intent and announces the returned
// message to the user.
package dispatch

import (
	"context"

	"github.com/mliane/voxpipe/pkg/provider/intent"
)

// CommandResult describes the outcome of executing an intent.
type CommandResult struct {
	// Success reports whether the command executed successfully.
	Success bool

	// Message is a short human-readable completion message announced to the
	// user ("Timer set for five minutes.").
	Message string
}

// Dispatcher is the abstraction over any command executor.
//
// Dispatch is potentially slow (network round-trips, device actuation) and
// must be called off the capture loop. Implementations must be safe for
// concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, it intent.Intent) (CommandResult, error)
}
