// Package resilience provides circuit breaker and provider failover
// primitives for the speech providers.
//
// [Breaker] shields the interaction loop from a backend that has started
// failing consistently. It wraps [gobreaker.CircuitBreaker] behind a small
// error-returning API so callers never deal with gobreaker's generic result
// values. [Chain] composes several instances of the same provider type, each
// behind its own breaker, so a broken primary is bypassed in favour of the
// next healthy entry.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// the cool-down has not yet elapsed.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrBreakerOpen] until the
	// cool-down elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through to decide
	// whether the backend has recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero-value fields get defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// TripAfter is the number of consecutive failures that opens the
	// breaker. Default: 5.
	TripAfter int

	// CoolDown is how long the breaker stays open before allowing probe
	// calls. Default: 30s.
	CoolDown time.Duration

	// ProbeMax is how many calls the half-open state admits before the
	// breaker decides to close or re-open. Default: 3.
	ProbeMax int
}

// Breaker is a three-state circuit breaker (closed → open → half-open)
// backed by [gobreaker.CircuitBreaker].
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a [Breaker] from cfg, applying defaults for zero
// fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.ProbeMax <= 0 {
		cfg.ProbeMax = 3
	}

	tripAfter := uint32(cfg.TripAfter)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: uint32(cfg.ProbeMax),
		Timeout:     cfg.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("circuit breaker state change",
				"name", name, "from", fromGobreaker(from), "to", fromGobreaker(to))
		},
	})
	return &Breaker{cb: cb}
}

// Do runs fn if the breaker admits the call. Open breakers reject with
// [ErrBreakerOpen]; half-open breakers admit up to ProbeMax probes.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	return err
}

// State reports the breaker's state. An open breaker whose cool-down has
// elapsed reports half-open.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
