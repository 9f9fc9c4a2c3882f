package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mliane/voxpipe/pkg/provider/capture"
	"github.com/mliane/voxpipe/pkg/provider/dispatch"
	"github.com/mliane/voxpipe/pkg/provider/intent"
	"github.com/mliane/voxpipe/pkg/provider/stt"
	"github.com/mliane/voxpipe/pkg/provider/tts"
	"github.com/mliane/voxpipe/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stt      map[string]func(ProviderEntry) (stt.Recognizer, error)
	tts      map[string]func(ProviderEntry) (tts.Synthesizer, error)
	intent   map[string]func(ProviderEntry) (intent.Extractor, error)
	dispatch map[string]func(ProviderEntry) (dispatch.Dispatcher, error)
	vad      map[string]func(ProviderEntry) (vad.Engine, error)
	capture  map[string]func(ProviderEntry) (capture.Device, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:      make(map[string]func(ProviderEntry) (stt.Recognizer, error)),
		tts:      make(map[string]func(ProviderEntry) (tts.Synthesizer, error)),
		intent:   make(map[string]func(ProviderEntry) (intent.Extractor, error)),
		dispatch: make(map[string]func(ProviderEntry) (dispatch.Dispatcher, error)),
		vad:      make(map[string]func(ProviderEntry) (vad.Engine, error)),
		capture:  make(map[string]func(ProviderEntry) (capture.Device, error)),
	}
}

// RegisterSTT registers a speech-recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a speech-synthesizer factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterIntent registers an intent-extractor factory under name.
func (r *Registry) RegisterIntent(name string, factory func(ProviderEntry) (intent.Extractor, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intent[name] = factory
}

// RegisterDispatch registers a command-dispatcher factory under name.
func (r *Registry) RegisterDispatch(name string, factory func(ProviderEntry) (dispatch.Dispatcher, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatch[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterCapture registers a capture device factory under name.
func (r *Registry) RegisterCapture(name string, factory func(ProviderEntry) (capture.Device, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = factory
}

// CreateSTT instantiates a recognizer using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a synthesizer using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateIntent instantiates an extractor using the factory registered under entry.Name.
func (r *Registry) CreateIntent(entry ProviderEntry) (intent.Extractor, error) {
	r.mu.RLock()
	factory, ok := r.intent[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: intent/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateDispatch instantiates a dispatcher using the factory registered under entry.Name.
func (r *Registry) CreateDispatch(entry ProviderEntry) (dispatch.Dispatcher, error) {
	r.mu.RLock()
	factory, ok := r.dispatch[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: dispatch/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVAD instantiates a VAD engine using the factory registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateCapture instantiates a capture device using the factory registered under entry.Name.
func (r *Registry) CreateCapture(entry ProviderEntry) (capture.Device, error) {
	r.mu.RLock()
	factory, ok := r.capture[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
