// Package mock provides a recording test double for the intent package.
package mock

import (
	"context"
	"sync"

	"github.com/mliane/voxpipe/pkg/provider/intent"
)

// Extractor is a mock implementation of intent.Extractor.
type Extractor struct {
	mu sync.Mutex

	// Result is returned by every Extract call when Script is empty.
	Result intent.Intent

	// Script, when non-empty, is consumed one Intent per call. After the
	// script is exhausted, Result is returned.
	Script []intent.Intent

	// Err, if non-nil, is returned by every Extract call.
	Err error

	// Texts records the text of every Extract call in order.
	Texts []string
}

var _ intent.Extractor = (*Extractor)(nil)

// Extract records the call and returns the next scripted intent.
func (e *Extractor) Extract(_ context.Context, text string) (intent.Intent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Texts = append(e.Texts, text)
	if e.Err != nil {
		return intent.Intent{}, e.Err
	}
	if len(e.Script) > 0 {
		it := e.Script[0]
		e.Script = e.Script[1:]
		if it.RawText == "" {
			it.RawText = text
		}
		return it, nil
	}
	it := e.Result
	if it.RawText == "" {
		it.RawText = text
	}
	return it, nil
}

// TextsSnapshot returns a copy of the recorded texts. Thread-safe.
func (e *Extractor) TextsSnapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Texts))
	copy(out, e.Texts)
	return out
}
