package resilience

import (
	"context"

	"github.com/mliane/voxpipe/pkg/provider/dispatch"
	"github.com/mliane/voxpipe/pkg/provider/intent"
	"github.com/mliane/voxpipe/pkg/provider/stt"
	"github.com/mliane/voxpipe/pkg/provider/tts"
)

// Recognizer implements [stt.Recognizer] with automatic failover across
// multiple transcription backends, each behind its own breaker.
type Recognizer struct {
	chain *Chain[stt.Recognizer]
}

var _ stt.Recognizer = (*Recognizer)(nil)

// NewRecognizer creates a [Recognizer] with primary as the preferred
// backend.
func NewRecognizer(primary stt.Recognizer, name string, cfg ChainConfig) *Recognizer {
	return &Recognizer{chain: NewChain(primary, name, cfg)}
}

// AddFallback registers an additional transcription backend.
func (r *Recognizer) AddFallback(name string, backend stt.Recognizer) {
	r.chain.Add(name, backend)
}

// Recognize transcribes samples against the first healthy backend.
func (r *Recognizer) Recognize(ctx context.Context, samples []float32, opts stt.RecognizeOptions) (stt.Transcript, error) {
	return Try(r.chain, func(backend stt.Recognizer) (stt.Transcript, error) {
		return backend.Recognize(ctx, samples, opts)
	})
}

// Synthesizer implements [tts.Synthesizer] with automatic failover across
// multiple speech backends.
type Synthesizer struct {
	chain *Chain[tts.Synthesizer]
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer creates a [Synthesizer] with primary as the preferred
// backend.
func NewSynthesizer(primary tts.Synthesizer, name string, cfg ChainConfig) *Synthesizer {
	return &Synthesizer{chain: NewChain(primary, name, cfg)}
}

// AddFallback registers an additional speech backend.
func (s *Synthesizer) AddFallback(name string, backend tts.Synthesizer) {
	s.chain.Add(name, backend)
}

// Synthesize speaks text through the first healthy backend.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.SpeechResult, error) {
	return Try(s.chain, func(backend tts.Synthesizer) (tts.SpeechResult, error) {
		return backend.Synthesize(ctx, text)
	})
}

// Extractor implements [intent.Extractor] with automatic failover across
// multiple intent backends. Useful when the primary is a remote LLM and the
// fallback a cheaper local model.
type Extractor struct {
	chain *Chain[intent.Extractor]
}

var _ intent.Extractor = (*Extractor)(nil)

// NewExtractor creates an [Extractor] with primary as the preferred
// backend.
func NewExtractor(primary intent.Extractor, name string, cfg ChainConfig) *Extractor {
	return &Extractor{chain: NewChain(primary, name, cfg)}
}

// AddFallback registers an additional intent backend.
func (e *Extractor) AddFallback(name string, backend intent.Extractor) {
	e.chain.Add(name, backend)
}

// Extract classifies text through the first healthy backend.
func (e *Extractor) Extract(ctx context.Context, text string) (intent.Intent, error) {
	return Try(e.chain, func(backend intent.Extractor) (intent.Intent, error) {
		return backend.Extract(ctx, text)
	})
}

// Dispatcher implements [dispatch.Dispatcher] with automatic failover
// across multiple command executors.
type Dispatcher struct {
	chain *Chain[dispatch.Dispatcher]
}

var _ dispatch.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a [Dispatcher] with primary as the preferred
// executor.
func NewDispatcher(primary dispatch.Dispatcher, name string, cfg ChainConfig) *Dispatcher {
	return &Dispatcher{chain: NewChain(primary, name, cfg)}
}

// AddFallback registers an additional command executor.
func (d *Dispatcher) AddFallback(name string, backend dispatch.Dispatcher) {
	d.chain.Add(name, backend)
}

// Dispatch executes it through the first healthy executor.
func (d *Dispatcher) Dispatch(ctx context.Context, it intent.Intent) (dispatch.CommandResult, error) {
	return Try(d.chain, func(backend dispatch.Dispatcher) (dispatch.CommandResult, error) {
		return backend.Dispatch(ctx, it)
	})
}
