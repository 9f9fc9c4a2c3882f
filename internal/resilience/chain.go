package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [Chain] either fails or
// sits behind an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// ChainConfig configures the per-entry breaker created for each provider in
// a [Chain].
type ChainConfig struct {
	Breaker BreakerConfig
}

// chainEntry pairs a provider value with its dedicated breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain wraps a primary and zero or more fallback instances of the same
// provider type. Entries are tried in registration order; entries whose
// breaker is open are skipped.
//
// Chain is safe for concurrent use once assembled. Add is not safe to call
// concurrently with Try.
type Chain[T any] struct {
	entries []chainEntry[T]
	cfg     ChainConfig
}

// NewChain creates a [Chain] with primary as the first entry.
func NewChain[T any](primary T, name string, cfg ChainConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(name, primary)
	return c
}

// Add appends a fallback provider. Fallbacks are tried in the order they
// are added, after the primary.
func (c *Chain[T]) Add(name string, provider T) {
	bc := c.cfg.Breaker
	bc.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   provider,
		breaker: NewBreaker(bc),
	})
}

// Try runs fn against each entry in order until one succeeds, returning the
// result. Returns [ErrAllFailed] wrapped with the last error when every
// entry fails.
//
// Try is a package-level function because Go methods cannot carry their own
// type parameters.
func Try[T any, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.entries {
		entry := &c.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(entry.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider, circuit open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
