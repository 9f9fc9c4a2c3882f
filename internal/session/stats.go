package session

import "sync/atomic"

// Stats holds the session's monotonically increasing counters. The machine
// is the only writer; external observers read through [Stats.Snapshot].
type Stats struct {
	segments atomic.Uint64
	batches  atomic.Uint64
	commands atomic.Uint64
}

// StatsSnapshot is a read-only copy of the counters at one instant.
type StatsSnapshot struct {
	// Segments is the number of classified segments observed.
	Segments uint64

	// Batches is the number of finalized batches processed.
	Batches uint64

	// Commands is the number of commands dispatched.
	Commands uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Segments: s.segments.Load(),
		Batches:  s.batches.Load(),
		Commands: s.commands.Load(),
	}
}
