// Package intent defines the Extractor interface for intent-classification
// backends and the Intent value exchanged with the interaction state machine.
//
// Classification runs on the concatenated final transcription of an
// utterance. The algorithm itself (rules, grammar, LLM) is a backend concern;
// the state machine only consumes the typed result and its confidence.
package intent

import "context"

// Intent is a classified user request.
type Intent struct {
	// RawText is the transcription the intent was extracted from.
	RawText string

	// Type is the backend-defined intent type (e.g., "set_timer",
	// "play_music", "unknown").
	Type string

	// Parameters holds the extracted slot values keyed by name.
	Parameters map[string]string

	// Confidence is the classifier's confidence in [0, 1].
	Confidence float64

	// Summary is a short human-readable restatement used for the
	// confirmation dialogue ("Do you want me to set a timer for 5 minutes?").
	Summary string
}

// Extractor is the abstraction over any intent-classification backend.
//
// Implementations must be safe for concurrent use.
type Extractor interface {
	// Extract classifies text into an Intent. A recognisable utterance with
	// no supported intent returns Type "unknown" with low confidence rather
	// than an error; errors indicate backend failure.
	Extract(ctx context.Context, text string) (Intent, error)
}
